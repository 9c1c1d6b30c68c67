package doclock

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/llxisdsh/doclock/internal/opt"
)

// ModeKind is the coarse state of a LockState.
type ModeKind uint8

const (
	Unlocked ModeKind = iota
	Shared
	Exclusive
)

func (k ModeKind) String() string {
	switch k {
	case Unlocked:
		return "Unlocked"
	case Shared:
		return "Shared"
	case Exclusive:
		return "Exclusive"
	}
	return "ModeKind(" + strconv.Itoa(int(k)) + ")"
}

// Mode is a snapshot of a LockState.
//
// Readers is the shared holder count and is only non-zero in Shared mode.
// Upgraded reports whether the current Exclusive holder got there through
// Upgrade, in which case it must leave through Downgrade.
type Mode struct {
	Kind     ModeKind
	Readers  int
	Upgraded bool
}

func (m Mode) String() string {
	if m.Kind == Shared {
		return "Shared(" + strconv.Itoa(m.Readers) + ")"
	}
	return m.Kind.String()
}

// LockState is a reader/writer lock with bounded waits, in-place upgrade
// from shared to exclusive mode, and downgrade back.
//
// It is zero-value usable (starts Unlocked) and must not be copied after
// first use. A resource embeds exactly one LockState.
//
// Properties:
//   - Waits are bounded by a context. Expiry leaves the state exactly as if
//     the call had not been made.
//   - Writer-preferred: once an exclusive request is queued, later shared
//     requests queue behind it.
//   - FIFO among queued shared and exclusive requests. A run of shared
//     requests at the head of the queue is admitted together.
//   - Pending upgrades take priority over every queued request. While one is
//     pending nothing else is admitted, so nobody can slip in between the
//     upgrader dropping reader status and gaining writer status.
//
// LockState has no notion of goroutine identity. Which holder owns which
// liability is tracked by the guard values (ReadGuard, WriteGuard,
// DestroyGuard) built on top of it.
type LockState struct {
	_  noCopy
	mu sync.Mutex

	readers  int
	writer   bool
	upgraded bool

	// queue holds shared and exclusive waiters in arrival order.
	queue waitQueue
	// upgrades holds readers waiting to become the writer.
	upgrades waitQueue

	_ opt.CacheLinePad_
}

var _ Lockable = (*LockState)(nil)

type waitKind uint8

const (
	waitShared waitKind = iota
	waitExclusive
	waitUpgrade
)

func (k waitKind) op() string {
	switch k {
	case waitShared:
		return "acquire shared"
	case waitExclusive:
		return "acquire exclusive"
	default:
		return "upgrade"
	}
}

type waiter struct {
	kind       waitKind
	ready      chan struct{}
	prev, next *waiter
}

// waitQueue is an intrusive doubly linked list so that an expired waiter
// can be unlinked in O(1).
type waitQueue struct {
	head, tail *waiter
	n          int
}

func (q *waitQueue) push(w *waiter) {
	w.prev = q.tail
	if q.tail == nil {
		q.head = w
	} else {
		q.tail.next = w
	}
	q.tail = w
	q.n++
}

func (q *waitQueue) remove(w *waiter) {
	if w.prev == nil {
		q.head = w.next
	} else {
		w.prev.next = w.next
	}
	if w.next == nil {
		q.tail = w.prev
	} else {
		w.next.prev = w.prev
	}
	w.prev, w.next = nil, nil
	q.n--
}

// AcquireShared acquires a shared lock, waiting until ctx is done.
//
// It is admitted at once if there is no exclusive holder, no pending
// upgrade and nobody queued; otherwise it queues. A single attempt is made
// even if ctx is already done. On deadline expiry it returns a
// *LockTimeoutError; on cancellation it returns ctx.Err().
func (l *LockState) AcquireShared(ctx context.Context) error {
	l.mu.Lock()
	if !l.writer && l.upgrades.n == 0 && l.queue.n == 0 {
		l.readers++
		l.mu.Unlock()
		return nil
	}
	return l.wait(ctx, waitShared)
}

// AcquireExclusive acquires the exclusive lock, waiting until ctx is done.
// It is admitted at once only if the lock is Unlocked and nobody is queued.
func (l *LockState) AcquireExclusive(ctx context.Context) error {
	l.mu.Lock()
	if !l.writer && l.readers == 0 && l.upgrades.n == 0 && l.queue.n == 0 {
		l.writer = true
		l.mu.Unlock()
		return nil
	}
	return l.wait(ctx, waitExclusive)
}

// Upgrade turns the caller's shared lock into the exclusive lock.
//
// The caller must hold a shared lock. If it is the only reader the switch
// is immediate. Otherwise the caller waits for the other readers to leave;
// no new shared or exclusive holder is admitted meanwhile. If ctx is done
// first the caller still holds its shared lock, unchanged.
func (l *LockState) Upgrade(ctx context.Context) error {
	l.mu.Lock()
	if l.writer || l.readers == 0 {
		l.mu.Unlock()
		panic("doclock: Upgrade without a shared lock")
	}
	if l.readers == 1 {
		l.readers = 0
		l.writer, l.upgraded = true, true
		l.mu.Unlock()
		return nil
	}
	return l.wait(ctx, waitUpgrade)
}

// Downgrade turns an exclusive lock obtained through Upgrade back into a
// single shared lock. Readers queued at the head may be admitted.
func (l *LockState) Downgrade() {
	l.mu.Lock()
	if !l.writer || !l.upgraded {
		l.mu.Unlock()
		panic("doclock: Downgrade of a lock that was not upgraded")
	}
	l.writer, l.upgraded = false, false
	l.readers = 1
	l.grant()
	l.mu.Unlock()
}

// Release releases one shared lock, or the exclusive lock.
// It panics if the lock is not held.
func (l *LockState) Release() {
	l.mu.Lock()
	switch {
	case l.writer:
		l.writer, l.upgraded = false, false
	case l.readers > 0:
		l.readers--
	default:
		l.mu.Unlock()
		panic("doclock: Release of unlocked LockState")
	}
	l.grant()
	l.mu.Unlock()
}

// TryAcquireShared is AcquireShared bounded by timeout. A timeout <= 0 makes
// a single non-blocking attempt.
func (l *LockState) TryAcquireShared(timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return l.AcquireShared(ctx) == nil
}

// TryAcquireExclusive is AcquireExclusive bounded by timeout.
func (l *LockState) TryAcquireExclusive(timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return l.AcquireExclusive(ctx) == nil
}

// TryUpgrade is Upgrade bounded by timeout.
func (l *LockState) TryUpgrade(timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return l.Upgrade(ctx) == nil
}

// Mode returns a snapshot of the lock state.
func (l *LockState) Mode() Mode {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch {
	case l.writer:
		return Mode{Kind: Exclusive, Upgraded: l.upgraded}
	case l.readers > 0:
		return Mode{Kind: Shared, Readers: l.readers}
	}
	return Mode{}
}

// Waiting returns the number of blocked acquire and upgrade calls.
func (l *LockState) Waiting() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.queue.n + l.upgrades.n
}

// wait parks the caller until it is granted the lock or ctx is done.
// l.mu must be held on entry; it is released before wait returns.
func (l *LockState) wait(ctx context.Context, kind waitKind) error {
	start := time.Now()
	if ctx.Err() != nil {
		l.mu.Unlock()
		return waitError(ctx, kind, start)
	}

	w := &waiter{kind: kind, ready: make(chan struct{})}
	l.queueFor(kind).push(w)
	l.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
	}
	l.abandon(w)
	return waitError(ctx, kind, start)
}

func (l *LockState) queueFor(kind waitKind) *waitQueue {
	if kind == waitUpgrade {
		return &l.upgrades
	}
	return &l.queue
}

// abandon withdraws w once its context is done. A grant that landed in
// between is rolled back.
func (l *LockState) abandon(w *waiter) {
	l.mu.Lock()
	select {
	case <-w.ready:
		l.revoke(w.kind)
	default:
		l.queueFor(w.kind).remove(w)
	}
	// The departed waiter may have been holding back the ones behind it.
	l.grant()
	l.mu.Unlock()
}

// revoke undoes a grant of the given kind. l.mu must be held.
func (l *LockState) revoke(kind waitKind) {
	switch kind {
	case waitShared:
		l.readers--
	case waitExclusive:
		l.writer = false
	case waitUpgrade:
		l.writer, l.upgraded = false, false
		l.readers = 1
	}
}

// grant admits as many waiters as the current state allows, in priority
// order. l.mu must be held.
func (l *LockState) grant() {
	for !l.writer {
		if w := l.upgrades.head; w != nil {
			// Every pending upgrader is also a reader, so readers == 1 means
			// the head upgrader is alone.
			if l.readers == 1 {
				l.upgrades.remove(w)
				l.readers = 0
				l.writer, l.upgraded = true, true
				close(w.ready)
			}
			return
		}
		w := l.queue.head
		if w == nil {
			return
		}
		if w.kind == waitExclusive {
			if l.readers == 0 {
				l.queue.remove(w)
				l.writer = true
				close(w.ready)
			}
			return
		}
		l.queue.remove(w)
		l.readers++
		close(w.ready)
	}
}

func waitError(ctx context.Context, kind waitKind, start time.Time) error {
	err := ctx.Err()
	if errors.Is(err, context.DeadlineExceeded) {
		return &LockTimeoutError{Op: kind.op(), Waited: time.Since(start)}
	}
	return err
}

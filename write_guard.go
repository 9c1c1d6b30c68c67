package doclock

import (
	"context"
	"strconv"
	"time"
)

// Origin records how a WriteGuard got its exclusive lock, which decides how
// the lock is given back.
type Origin uint8

const (
	// DirectExclusive guards were opened with OpenWrite and release straight
	// to Unlocked.
	DirectExclusive Origin = iota + 1
	// UpgradedFromShared guards were produced by Upgrade. They downgrade to
	// the shared lock they came from and then release that.
	UpgradedFromShared
)

func (o Origin) String() string {
	switch o {
	case DirectExclusive:
		return "DirectExclusive"
	case UpgradedFromShared:
		return "UpgradedFromShared"
	}
	return "Origin(" + strconv.Itoa(int(o)) + ")"
}

// WriteGuard holds the exclusive lock on a resource, either acquired
// directly or upgraded from a ReadGuard.
//
// Like ReadGuard it is pointer-only, must not be copied, and belongs to the
// goroutine that produced it.
type WriteGuard[R Lockable] struct {
	_      noCopy
	res    R
	state  guardState
	origin Origin
	// from is the ReadGuard whose shared lock was upgraded. It is moved
	// while this guard is locked.
	from *ReadGuard[R]
}

// OpenWrite acquires the exclusive lock on res, waiting at most timeout.
func OpenWrite[R Lockable](res R, timeout time.Duration) (*WriteGuard[R], error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return OpenWriteContext(ctx, res)
}

// OpenWriteContext is OpenWrite with the wait bounded by ctx.
func OpenWriteContext[R Lockable](ctx context.Context, res R) (*WriteGuard[R], error) {
	if err := res.AcquireExclusive(ctx); err != nil {
		return nil, err
	}
	return &WriteGuard[R]{res: res, state: guardLocked, origin: DirectExclusive}, nil
}

// Upgrade turns the shared lock held by rg into the exclusive lock, waiting
// at most timeout for the other readers to leave.
//
// On success rg is moved into the returned guard: its Close becomes a no-op
// and closing the WriteGuard discharges both liabilities. On failure rg is
// left exactly as it was, still locked and usable, and the error is a
// *LockTimeoutError.
//
//	r, err := doclock.OpenRead(doc, timeout)
//	if err != nil {
//		return err
//	}
//	defer r.Close()
//	w, err := doclock.Upgrade(r, timeout)
//	if err != nil {
//		return err // r still holds its shared lock
//	}
//	defer w.Close()
func Upgrade[R Lockable](rg *ReadGuard[R], timeout time.Duration) (*WriteGuard[R], error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return UpgradeContext(ctx, rg)
}

// UpgradeContext is Upgrade with the wait bounded by ctx.
// It panics if rg does not hold its shared lock.
func UpgradeContext[R Lockable](ctx context.Context, rg *ReadGuard[R]) (*WriteGuard[R], error) {
	rg.state.mustBeLocked("Upgrade")
	if err := rg.res.Upgrade(ctx); err != nil {
		return nil, err
	}
	rg.state = guardMoved
	return &WriteGuard[R]{
		res:    rg.res,
		state:  guardLocked,
		origin: UpgradedFromShared,
		from:   rg,
	}, nil
}

// Resource returns the guarded resource for reading or mutation.
// It panics if the guard does not hold its lock.
func (g *WriteGuard[R]) Resource() R {
	g.state.mustBeLocked("Resource")
	return g.res
}

// Origin reports how the guard obtained its lock.
func (g *WriteGuard[R]) Origin() Origin {
	return g.origin
}

// Locked reports whether the guard currently holds the exclusive lock.
func (g *WriteGuard[R]) Locked() bool {
	return g != nil && g.state == guardLocked
}

// Close gives the lock back: a direct guard releases it, an upgraded guard
// downgrades and then releases the restored shared lock. Close is
// idempotent.
func (g *WriteGuard[R]) Close() {
	if g == nil || g.state != guardLocked {
		return
	}
	g.release()
}

// Downgrade ends an upgraded guard early and hands the shared lock back to
// the ReadGuard it was upgraded from, which is returned locked. The
// WriteGuard becomes inert.
//
// It panics on a guard opened with OpenWrite.
func (g *WriteGuard[R]) Downgrade() *ReadGuard[R] {
	g.state.mustBeLocked("Downgrade")
	if g.origin != UpgradedFromShared {
		panic("doclock: Downgrade of a WriteGuard not obtained by Upgrade")
	}
	g.res.Downgrade()
	rg := g.from
	g.from = nil
	g.state = guardReleased
	rg.state = guardLocked
	return rg
}

func (g *WriteGuard[R]) release() {
	g.state = guardReleased
	switch g.origin {
	case DirectExclusive:
		g.res.Release()
	case UpgradedFromShared:
		g.res.Downgrade()
		rg := g.from
		g.from = nil
		rg.state = guardLocked
		rg.Close()
	default:
		panic("doclock: WriteGuard with unknown origin " + g.origin.String())
	}
}

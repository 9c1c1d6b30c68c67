package doclock

import (
	"context"
	"time"
)

// ReadGuard holds one shared lock on a resource.
//
// A ReadGuard is only ever used through a pointer and must not be copied:
// copying would duplicate the lock liability. A second shared lock needs a
// fresh OpenRead. The zero value is an unopened guard; calling Resource on
// it panics.
//
// A ReadGuard is not safe for concurrent use. It belongs to the goroutine
// that opened it.
type ReadGuard[R Lockable] struct {
	_     noCopy
	res   R
	state guardState
}

// OpenRead acquires a shared lock on res, waiting at most timeout.
// On failure the error is a *LockTimeoutError and no guard is produced.
//
//	r, err := doclock.OpenRead(doc, time.Second)
//	if err != nil {
//		return err
//	}
//	defer r.Close()
func OpenRead[R Lockable](res R, timeout time.Duration) (*ReadGuard[R], error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return OpenReadContext(ctx, res)
}

// OpenReadContext is OpenRead with the wait bounded by ctx.
func OpenReadContext[R Lockable](ctx context.Context, res R) (*ReadGuard[R], error) {
	if err := res.AcquireShared(ctx); err != nil {
		return nil, err
	}
	return &ReadGuard[R]{res: res, state: guardLocked}, nil
}

// Resource returns the guarded resource.
// It panics if the guard does not hold its lock.
func (g *ReadGuard[R]) Resource() R {
	g.state.mustBeLocked("Resource")
	return g.res
}

// Locked reports whether the guard currently holds its shared lock.
func (g *ReadGuard[R]) Locked() bool {
	return g != nil && g.state == guardLocked
}

// Close releases the shared lock. It is a no-op on a guard that is not
// holding one, so it is safe to defer right after a successful open, even
// if the guard is later upgraded.
func (g *ReadGuard[R]) Close() {
	if g == nil || g.state != guardLocked {
		return
	}
	g.state = guardReleased
	g.res.Release()
}

package doclock

import (
	"context"
	"fmt"
	"time"
)

// DestroyGuard is a WriteGuard that tears its resource down.
//
// It is only opened with direct exclusive acquisition, never by upgrade.
// Consume finalizes the resource under the exclusive lock, releases the
// lock, and drops the resource. After that the guard is consumed: Close is
// a no-op and every other method panics.
type DestroyGuard[R Destroyable] struct {
	w    WriteGuard[R]
	drop func(R)
}

// OpenDestroy acquires the exclusive lock on res for destruction, waiting at
// most timeout.
func OpenDestroy[R Destroyable](res R, timeout time.Duration) (*DestroyGuard[R], error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return OpenDestroyContext(ctx, res)
}

// OpenDestroyContext is OpenDestroy with the wait bounded by ctx.
func OpenDestroyContext[R Destroyable](ctx context.Context, res R) (*DestroyGuard[R], error) {
	return openDestroy(ctx, res, nil)
}

// openDestroy opens a DestroyGuard whose Consume ends by calling drop, which
// is how the owner of res forgets it.
func openDestroy[R Destroyable](ctx context.Context, res R, drop func(R)) (*DestroyGuard[R], error) {
	if err := res.AcquireExclusive(ctx); err != nil {
		return nil, err
	}
	g := &DestroyGuard[R]{drop: drop}
	g.w.res = res
	g.w.state = guardLocked
	g.w.origin = DirectExclusive
	return g, nil
}

// Resource returns the resource about to be destroyed.
// It panics after Consume.
func (g *DestroyGuard[R]) Resource() R {
	return g.w.Resource()
}

// Locked reports whether the guard holds the exclusive lock.
func (g *DestroyGuard[R]) Locked() bool {
	return g != nil && g.w.Locked()
}

// Consumed reports whether Consume has run.
func (g *DestroyGuard[R]) Consumed() bool {
	return g != nil && g.w.state == guardConsumed
}

// Consume destroys the resource:
//  1. Close the resource while the exclusive lock is held.
//  2. Release the lock, once.
//  3. Drop the resource from its owner.
//  4. Mark the guard consumed.
//
// The lock lives inside the resource, so it is released before the resource
// is dropped, and finalization runs under the lock so no other holder sees
// it half done. Steps 2 to 4 run even if Close fails or panics; a Close
// error is returned at the end and a panic is re-raised. Calling Consume
// twice panics.
func (g *DestroyGuard[R]) Consume() error {
	g.w.state.mustBeLocked("Consume")
	res := g.w.res
	defer func() {
		g.w.release()
		if g.drop != nil {
			g.drop(res)
		}
		var zero R
		g.w.res = zero
		g.w.state = guardConsumed
	}()
	if err := res.Close(); err != nil {
		return fmt.Errorf("doclock: finalize: %w", err)
	}
	return nil
}

// Close releases the lock without destroying anything. It is a no-op after
// Consume or a previous Close.
func (g *DestroyGuard[R]) Close() {
	if g == nil {
		return
	}
	g.w.Close()
}

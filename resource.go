package doclock

import "context"

// Lockable is the locking surface of a guarded resource. *LockState
// implements it, so a resource usually just embeds a LockState.
//
// Guards are the intended callers. Calling these directly makes the caller
// responsible for pairing every acquire with exactly one Release.
type Lockable interface {
	AcquireShared(ctx context.Context) error
	AcquireExclusive(ctx context.Context) error
	Upgrade(ctx context.Context) error
	Downgrade()
	Release()
}

// Destroyable is a Lockable resource with a finalize step. DestroyGuard
// calls Close while holding the exclusive lock.
//
// Closed reports whether Close has been called. A holder that was queued
// behind the destroying guard uses it to tell that the resource is gone.
type Destroyable interface {
	Lockable
	Close() error
	Closed() bool
}

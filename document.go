package doclock

import "sync/atomic"

// Document is a ready-made Destroyable resource: a value of type T guarded
// by an embedded LockState.
//
// The value is only protected by convention. Read it while holding a
// ReadGuard or WriteGuard, mutate it only while holding a WriteGuard.
//
// Usage:
//
//	doc := doclock.NewDocument(&Sprite{}, doclock.WithFinalizer(func(s **Sprite) error {
//		return (*s).Flush()
//	}))
//
//	w, err := doclock.OpenWrite(doc, 500*time.Millisecond)
//	if err != nil {
//		return err // errors.Is(err, doclock.ErrLocked)
//	}
//	defer w.Close()
//	(*w.Resource().Value()).Frames++
type Document[T any] struct {
	LockState
	value    T
	finalize func(*T) error
	closed   atomic.Bool
}

// DocumentOption configures a Document.
type DocumentOption[T any] func(*Document[T])

// WithFinalizer sets the function Close runs, once, before the document is
// dropped.
func WithFinalizer[T any](fn func(*T) error) DocumentOption[T] {
	return func(d *Document[T]) {
		d.finalize = fn
	}
}

// NewDocument creates an unlocked document holding value.
func NewDocument[T any](value T, options ...DocumentOption[T]) *Document[T] {
	d := &Document[T]{value: value}
	for _, o := range options {
		o(d)
	}
	return d
}

// Value returns a pointer to the guarded value.
func (d *Document[T]) Value() *T {
	return &d.value
}

// Close runs the finalizer. Only the first call does anything; later calls
// return ErrClosed.
func (d *Document[T]) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	if d.finalize != nil {
		return d.finalize(&d.value)
	}
	return nil
}

// Closed reports whether Close has been called.
func (d *Document[T]) Closed() bool {
	return d.closed.Load()
}

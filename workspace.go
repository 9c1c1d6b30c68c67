package doclock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/llxisdsh/pb"
)

// Entry constrains what a Workspace holds: a Destroyable that can be
// compared for identity, usually a pointer such as *Document[T].
type Entry interface {
	comparable
	Destroyable
}

// Workspace owns a set of resources keyed by K and hands out guards on
// them with its configured timeouts.
//
// A resource destroyed through Workspace.Destroy is removed from the
// workspace by DestroyGuard.Consume, after its lock has been released.
// Opens that were queued behind the destroy fail with ErrNotFound instead
// of handing out a guard on the dead resource.
//
// Usage:
//
//	ws := doclock.NewWorkspace[string, *doclock.Document[Sprite]](
//		doclock.WithWriteTimeout(time.Second),
//	)
//	ws.Add("a.ase", doclock.NewDocument(Sprite{}))
//
//	d, err := ws.Destroy("a.ase")
//	if err != nil {
//		return err
//	}
//	defer d.Close()
//	return d.Consume()
type Workspace[K comparable, R Entry] struct {
	_   noCopy
	m   pb.MapOf[K, R]
	cfg WorkspaceConfig
}

// NewWorkspace creates an empty workspace.
func NewWorkspace[K comparable, R Entry](options ...func(*WorkspaceConfig)) *Workspace[K, R] {
	w := &Workspace[K, R]{cfg: defaultWorkspaceConfig()}
	for _, o := range options {
		o(&w.cfg)
	}
	return w
}

// Add registers res under key. It returns false, and changes nothing, if
// the key is already taken.
func (w *Workspace[K, R]) Add(key K, res R) bool {
	_, loaded := w.m.ProcessEntry(
		key,
		func(l *pb.EntryOf[K, R]) (*pb.EntryOf[K, R], R, bool) {
			if l != nil {
				return l, l.Value, true
			}
			return &pb.EntryOf[K, R]{Key: key, Value: res}, res, false
		},
	)
	if !loaded {
		w.cfg.logger.Debug("doclock: resource added", slog.Any("key", key))
	}
	return !loaded
}

// Get returns the resource registered under key without locking it.
func (w *Workspace[K, R]) Get(key K) (R, bool) {
	return w.m.Load(key)
}

// Len returns the number of registered resources.
func (w *Workspace[K, R]) Len() int {
	return w.m.Size()
}

// Range calls fn for each registered resource until fn returns false.
// Resources are not locked.
func (w *Workspace[K, R]) Range(fn func(key K, res R) bool) {
	w.m.Range(fn)
}

// Read opens a ReadGuard on the resource under key.
func (w *Workspace[K, R]) Read(key K) (*ReadGuard[R], error) {
	res, ok := w.m.Load(key)
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, key)
	}
	g, err := OpenRead(res, w.cfg.readTimeout)
	if err != nil {
		w.logFailure("read", key, err)
		return nil, err
	}
	if !w.holds(key, res) {
		g.Close()
		return nil, w.gone("read", key)
	}
	return g, nil
}

// Write opens a WriteGuard on the resource under key.
func (w *Workspace[K, R]) Write(key K) (*WriteGuard[R], error) {
	res, ok := w.m.Load(key)
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, key)
	}
	g, err := OpenWrite(res, w.cfg.writeTimeout)
	if err != nil {
		w.logFailure("write", key, err)
		return nil, err
	}
	if !w.holds(key, res) {
		g.Close()
		return nil, w.gone("write", key)
	}
	return g, nil
}

// Destroy opens a DestroyGuard on the resource under key. Consuming the
// guard removes key from the workspace, provided it still maps to the same
// resource.
func (w *Workspace[K, R]) Destroy(key K) (*DestroyGuard[R], error) {
	res, ok := w.m.Load(key)
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, key)
	}
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.writeTimeout)
	defer cancel()
	g, err := openDestroy(ctx, res, func(r R) {
		w.remove(key, r)
	})
	if err != nil {
		w.logFailure("destroy", key, err)
		return nil, err
	}
	if !w.holds(key, res) {
		g.Close()
		return nil, w.gone("destroy", key)
	}
	return g, nil
}

// holds reports whether key still maps to res and res is alive. The caller
// holds a lock on res, so a destroy that finished while it waited is
// visible through res.Closed.
func (w *Workspace[K, R]) holds(key K, res R) bool {
	cur, ok := w.m.Load(key)
	return ok && cur == res && !res.Closed()
}

func (w *Workspace[K, R]) gone(op string, key K) error {
	w.cfg.logger.Debug("doclock: resource destroyed while waiting",
		slog.String("op", op),
		slog.Any("key", key),
	)
	return fmt.Errorf("%w: %v", ErrNotFound, key)
}

// remove deletes key if it still maps to res.
func (w *Workspace[K, R]) remove(key K, res R) {
	_, removed := w.m.ProcessEntry(
		key,
		func(l *pb.EntryOf[K, R]) (*pb.EntryOf[K, R], R, bool) {
			if l != nil && l.Value == res {
				return nil, l.Value, true
			}
			return l, res, false
		},
	)
	if removed {
		w.cfg.logger.Debug("doclock: resource destroyed", slog.Any("key", key))
	}
}

func (w *Workspace[K, R]) logFailure(op string, key K, err error) {
	var te *LockTimeoutError
	if errors.As(err, &te) {
		w.cfg.logger.Debug("doclock: lock timeout",
			slog.String("op", op),
			slog.Any("key", key),
			slog.Duration("waited", te.Waited),
		)
		return
	}
	w.cfg.logger.Debug("doclock: open failed",
		slog.String("op", op),
		slog.Any("key", key),
		slog.Any("error", err),
	)
}

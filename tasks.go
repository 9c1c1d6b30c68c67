package doclock

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// RetryPolicy says how a background task retries a lock that timed out.
type RetryPolicy struct {
	// Attempts is the total number of tries. Values below 1 mean 1.
	Attempts int
	// Timeout bounds each try.
	Timeout time.Duration
	// Backoff is the pause after the first failed try. It doubles after
	// each further failure, up to maxBackoff.
	Backoff time.Duration
}

const maxBackoff = time.Second

// DefaultRetryPolicy is used by Tasks unless WithRetry says otherwise.
var DefaultRetryPolicy = RetryPolicy{
	Attempts: 5,
	Timeout:  100 * time.Millisecond,
	Backoff:  10 * time.Millisecond,
}

// TasksConfig defines configurable options for Tasks.
type TasksConfig struct {
	limit  int
	retry  RetryPolicy
	logger *slog.Logger
}

// WithLimit caps the number of tasks running at once. n <= 0 means no cap.
func WithLimit(n int) func(*TasksConfig) {
	return func(c *TasksConfig) {
		c.limit = n
	}
}

// WithRetry sets the retry policy for lock timeouts.
func WithRetry(p RetryPolicy) func(*TasksConfig) {
	return func(c *TasksConfig) {
		c.retry = p
	}
}

// WithTasksLogger sets the structured logger. A nil logger is ignored.
func WithTasksLogger(l *slog.Logger) func(*TasksConfig) {
	return func(c *TasksConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// Tasks runs background work against guarded resources.
//
// Each task opens a guard per attempt and retries lock timeouts according
// to its RetryPolicy. The lock primitive itself never retries. The first
// task to fail, including by running out of attempts, cancels the rest.
//
// Usage:
//
//	tasks := doclock.NewTasks[*doclock.Document[Sprite]](ctx, doclock.WithLimit(4))
//	tasks.GoWrite(doc, func(ctx context.Context, d *doclock.Document[Sprite]) error {
//		return render(ctx, d.Value())
//	})
//	if err := tasks.Wait(); err != nil {
//		...
//	}
type Tasks[R Lockable] struct {
	g   *errgroup.Group
	ctx context.Context
	cfg TasksConfig
}

// NewTasks creates a task group bound to ctx.
func NewTasks[R Lockable](ctx context.Context, options ...func(*TasksConfig)) *Tasks[R] {
	cfg := TasksConfig{
		retry:  DefaultRetryPolicy,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, o := range options {
		o(&cfg)
	}
	g, ctx := errgroup.WithContext(ctx)
	if cfg.limit > 0 {
		g.SetLimit(cfg.limit)
	}
	return &Tasks[R]{g: g, ctx: ctx, cfg: cfg}
}

// GoRead runs fn under a ReadGuard on res. The context passed to fn is
// canceled when another task fails or the parent context is done.
func (t *Tasks[R]) GoRead(res R, fn func(context.Context, R) error) {
	t.g.Go(func() error {
		return t.retry("read", func(ctx context.Context) error {
			g, err := OpenReadContext(ctx, res)
			if err != nil {
				return err
			}
			defer g.Close()
			return fn(t.ctx, g.Resource())
		})
	})
}

// GoWrite runs fn under a WriteGuard on res, with the same context as
// GoRead.
func (t *Tasks[R]) GoWrite(res R, fn func(context.Context, R) error) {
	t.g.Go(func() error {
		return t.retry("write", func(ctx context.Context) error {
			g, err := OpenWriteContext(ctx, res)
			if err != nil {
				return err
			}
			defer g.Close()
			return fn(t.ctx, g.Resource())
		})
	})
}

// Wait blocks until every task has returned and reports the first error.
func (t *Tasks[R]) Wait() error {
	return t.g.Wait()
}

// retry calls attempt until it returns something other than a lock timeout
// or the policy runs out. Errors from the task body are never retried.
func (t *Tasks[R]) retry(op string, attempt func(ctx context.Context) error) error {
	p := t.cfg.retry
	backoff := p.Backoff
	for i := 1; ; i++ {
		ctx, cancel := context.WithTimeout(t.ctx, p.Timeout)
		err := attempt(ctx)
		cancel()
		if err == nil || !errors.Is(err, ErrLocked) || i >= p.Attempts {
			return err
		}
		t.cfg.logger.Debug("doclock: task lock timeout, retrying",
			slog.String("op", op),
			slog.Int("attempt", i),
			slog.Duration("backoff", backoff),
		)
		if backoff > 0 {
			timer := time.NewTimer(backoff)
			select {
			case <-timer.C:
			case <-t.ctx.Done():
				timer.Stop()
				return t.ctx.Err()
			}
			backoff = min(2*backoff, maxBackoff)
		}
	}
}

package doclock

import (
	"log/slog"
	"time"
)

// Default timeouts used by a Workspace when none are configured.
const (
	DefaultReadTimeout  = 500 * time.Millisecond
	DefaultWriteTimeout = 500 * time.Millisecond
)

// WorkspaceConfig defines configurable options for Workspace initialization.
type WorkspaceConfig struct {
	// readTimeout bounds Workspace.Read.
	readTimeout time.Duration

	// writeTimeout bounds Workspace.Write and Workspace.Destroy.
	writeTimeout time.Duration

	// logger receives debug records about timeouts and destroys.
	// Never nil after defaults are applied.
	logger *slog.Logger
}

func defaultWorkspaceConfig() WorkspaceConfig {
	return WorkspaceConfig{
		readTimeout:  DefaultReadTimeout,
		writeTimeout: DefaultWriteTimeout,
		logger:       slog.New(slog.DiscardHandler),
	}
}

// WithReadTimeout sets how long Workspace.Read waits for a shared lock.
// A zero or negative value makes a single non-blocking attempt.
func WithReadTimeout(d time.Duration) func(*WorkspaceConfig) {
	return func(c *WorkspaceConfig) {
		c.readTimeout = d
	}
}

// WithWriteTimeout sets how long Workspace.Write and Workspace.Destroy wait
// for the exclusive lock.
func WithWriteTimeout(d time.Duration) func(*WorkspaceConfig) {
	return func(c *WorkspaceConfig) {
		c.writeTimeout = d
	}
}

// WithLogger sets the structured logger. A nil logger is ignored.
func WithLogger(l *slog.Logger) func(*WorkspaceConfig) {
	return func(c *WorkspaceConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

package doclock

import (
	"errors"
	"time"
)

// ErrLocked is the sentinel every *LockTimeoutError matches with errors.Is.
var ErrLocked = errors.New("resource is locked by a background task; try again later")

var (
	// ErrNotFound is returned by Workspace lookups for an unknown key.
	ErrNotFound = errors.New("doclock: resource not found")
	// ErrClosed is returned by Document.Close after the first call.
	ErrClosed = errors.New("doclock: document already closed")
)

// LockTimeoutError reports that an acquire, upgrade or open did not succeed
// before its deadline. The lock state is left as if the call was never made.
//
// Its message is fixed; Op and Waited are for callers that want details.
type LockTimeoutError struct {
	Op     string
	Waited time.Duration
}

func (e *LockTimeoutError) Error() string {
	return ErrLocked.Error()
}

// Is makes errors.Is(err, ErrLocked) true.
func (e *LockTimeoutError) Is(target error) bool {
	return target == ErrLocked
}

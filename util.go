package doclock

// noCopy may be added to structs which must not be copied
// after the first use.
//
// See https://golang.org/issues/8005#issuecomment-190753527
// for details.
//
// Note that it must not be embedded, due to the Lock and Unlock methods.
type noCopy struct{}

// Lock is a no-op used by -copylocks checker from `go vet`.
func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// guardState is the lifecycle of a guard. Only guardLocked carries a lock
// liability; every other state is terminal or inert.
type guardState uint8

const (
	guardUnopened guardState = iota
	guardLocked
	guardReleased
	guardMoved
	guardConsumed
)

// mustBeLocked panics unless s is guardLocked. Using a guard outside its
// locked lifetime is a defect in the caller, never a recoverable error.
func (s guardState) mustBeLocked(op string) {
	switch s {
	case guardLocked:
		return
	case guardUnopened:
		panic("doclock: " + op + " on unopened guard")
	case guardReleased:
		panic("doclock: " + op + " on released guard")
	case guardMoved:
		panic("doclock: " + op + " on guard moved into a WriteGuard")
	case guardConsumed:
		panic("doclock: " + op + " on consumed guard")
	default:
		panic("doclock: " + op + " on guard in unknown state")
	}
}

//go:build race

package opt

// Race_ reports whether the race detector is enabled. Timing-sensitive
// tests widen their margins when it is.
const Race_ = true

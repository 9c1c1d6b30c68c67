package opt

import (
	"unsafe"

	"golang.org/x/sys/cpu"
)

// CacheLinePad_ is placed at the end of hot lock structs so that two of them
// stored next to each other never share a cache line.
type CacheLinePad_ = cpu.CacheLinePad

// CacheLineSize_ is the size of CacheLinePad_ on this platform.
const CacheLineSize_ = unsafe.Sizeof(cpu.CacheLinePad{})

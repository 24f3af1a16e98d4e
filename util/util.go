package util

import "log"

// Debug is the verbosity threshold for DPrintf.
//
// Level 1 reports format milestones, 3 per-region steps, 5 per-block traffic
// and 10 per-byte detail.
var Debug uint64 = 1

func DPrintf(level uint64, format string, a ...interface{}) {
	if level <= Debug {
		log.Printf(format, a...)
	}
}

// RoundUp returns the number of sz-sized units needed to hold n.
func RoundUp(n uint64, sz uint64) uint64 {
	return (n + sz - 1) / sz
}

func Min(n uint64, m uint64) uint64 {
	if n < m {
		return n
	} else {
		return m
	}
}

// SumOverflows reports whether n + m wraps around.
func SumOverflows(n uint64, m uint64) bool {
	return n+m < n
}

// MulOverflows reports whether n * m wraps around.
func MulOverflows(n uint64, m uint64) bool {
	if n == 0 {
		return false
	}
	return (n*m)/n != m
}

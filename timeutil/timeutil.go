// Package timeutil provides monotonic-time and millisecond/timespec
// conversion helpers shared across semian-go's blocking primitives.
//
// §5 of the spec draws a sharp line between the two clocks in play:
// semtimedop uses CLOCK_REALTIME semantics for its deadline, while wait-time
// measurement (and every internal timeout bound in this repo) uses
// CLOCK_MONOTONIC so that a clock step never shortens or lengthens an
// in-flight wait.
package timeutil

import (
	"time"

	"golang.org/x/sys/unix"
)

// NowMs returns the current monotonic time in milliseconds. It is only
// meaningful relative to another NowMs call in the same process; it is not
// a wall-clock timestamp.
func NowMs() int64 {
	var ts unix.Timespec
	// CLOCK_MONOTONIC is immune to wall-clock adjustments, the same
	// property CLOCK_MONOTONIC gives semop-based wait accounting.
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		// Fall back to wall-clock time, which is not monotonic; this
		// should not happen on any platform this package targets.
		return time.Now().UnixNano() / int64(time.Millisecond)
	}
	return ts.Sec*1000 + ts.Nsec/int64(time.Millisecond)
}

// DiffMs returns end-start in milliseconds, for two NowMs() readings.
func DiffMs(start, end int64) int64 {
	return end - start
}

// MsToTimespec converts a millisecond duration into a unix.Timespec
// suitable for semtimedop's relative-timeout argument.
func MsToTimespec(ms int64) unix.Timespec {
	if ms < 0 {
		ms = 0
	}
	sec := ms / 1000
	nsec := (ms % 1000) * int64(time.Millisecond)
	return unix.Timespec{Sec: sec, Nsec: nsec}
}

// MsToDuration converts milliseconds to a time.Duration, for callers that
// want to combine a semian-go timeout with context.WithTimeout.
func MsToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// Package key derives stable 32-bit IPC keys from resource names.
//
// A resource key must be deterministic across processes and across runs,
// and structurally incompatible co-located objects (a semaphore set versus
// a sliding window's shared-memory segment versus a PID controller's
// shared-memory segment) must never collide on the same key even when they
// share a resource name. §4.1 of the spec addresses this by hashing the
// name together with a discriminator suffix naming the structure.
package key

import (
	"crypto/sha1"
	"encoding/binary"
	"fmt"
)

// NumSems is the fixed cardinality of a resource's semaphore set (§3).
const NumSems = 5

// Discriminator suffixes for auxiliary shared-memory structures (§4.1).
const (
	SuffixPID           = "_pid"
	SuffixSlidingWindow = "_sliding_window"
)

// ResourceKey derives the 32-bit key for a resource's semaphore set: SHA-1
// over name || "_NUM_SEMS_" || decimal(NumSems), first four bytes taken
// native-endian.
func ResourceKey(name string) uint32 {
	return hashKey(fmt.Sprintf("%s_NUM_SEMS_%d", name, NumSems))
}

// AuxKey derives the 32-bit key for an auxiliary shared-memory structure
// (PID controller, sliding window) distinguished from the semaphore set and
// from each other by suffix.
func AuxKey(name, suffix string) uint32 {
	return hashKey(name + suffix)
}

// hashKey is the pure, deterministic core: SHA-1 the input, interpret the
// first four bytes as a native-endian uint32. Collisions across distinct
// inputs are treated as user error (two resources sharing a name plus
// suffix), not a library concern.
func hashKey(input string) uint32 {
	sum := sha1.Sum([]byte(input))
	return binary.NativeEndian.Uint32(sum[:4])
}

// Hex renders a key the way the external interface in §6 requires:
// an 8-hex-digit string with a "0x" prefix.
func Hex(k uint32) string {
	return fmt.Sprintf("0x%08x", k)
}

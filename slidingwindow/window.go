// Package slidingwindow implements a fixed-capacity ring buffer of recent
// integer outcomes, backed by shared memory, guarded by the owning
// resource's META_LOCK rather than a private lock (§4.6).
package slidingwindow

import (
	"encoding/binary"
	"math"

	"semian-go/ipc/sysv"
	"semian-go/key"
)

// MaxCapacity is the ABI-fixed upper bound on max_size (§6: "must match
// across co-located processes").
const MaxCapacity = 1000

// header layout within the shared segment: max_size, length, start, each
// a native-endian int32, followed by MaxCapacity int32 data slots.
const (
	offMaxSize = 0
	offLength  = 4
	offStart   = 8
	offData    = 12

	segmentSize = offData + MaxCapacity*4
)

// SlidingWindow is a handle to a shared ring buffer. All operations take
// the owning resource's META_LOCK, serializing with reconfiguration
// rather than a separate private lock (§4.6).
type SlidingWindow struct {
	set *sysv.SemaphoreSet
	seg *sysv.Segment
	buf []byte
}

// New creates or attaches the shared segment for name (key discriminated
// by key.SuffixSlidingWindow), sizing it per the initial scale rule:
// max(1, ceil(registeredWorkers*scaleFactor)), capped at MaxCapacity and
// floored at configuredThreshold (§4.6, final bullet).
func New(set *sysv.SemaphoreSet, name string, registeredWorkers int, scaleFactor float64, configuredThreshold int, perm uint16) (*SlidingWindow, error) {
	k := key.AuxKey(name, key.SuffixSlidingWindow)
	seg, wasCreator, err := sysv.CreateOrAttachSegment(k, segmentSize, perm)
	if err != nil {
		return nil, err
	}
	buf, err := seg.Attach()
	if err != nil {
		return nil, err
	}
	sw := &SlidingWindow{set: set, seg: seg, buf: buf}

	if wasCreator {
		initial := initialSize(registeredWorkers, scaleFactor, configuredThreshold)
		if err := sw.set.MetaLock(); err != nil {
			return nil, err
		}
		sw.setMaxSize(initial)
		sw.setLength(0)
		sw.setStart(0)
		if err := sw.set.MetaUnlock(); err != nil {
			return nil, err
		}
	}
	return sw, nil
}

func initialSize(registeredWorkers int, scaleFactor float64, configuredThreshold int) int32 {
	scaled := int(math.Ceil(float64(registeredWorkers) * scaleFactor))
	if scaled < 1 {
		scaled = 1
	}
	if scaled < configuredThreshold {
		scaled = configuredThreshold
	}
	if scaled > MaxCapacity {
		scaled = MaxCapacity
	}
	return int32(scaled)
}

// --- raw field access (caller must hold META_LOCK) ---

func (sw *SlidingWindow) maxSize() int32 { return int32(binary.NativeEndian.Uint32(sw.buf[offMaxSize:])) }
func (sw *SlidingWindow) setMaxSize(v int32) {
	binary.NativeEndian.PutUint32(sw.buf[offMaxSize:], uint32(v))
}
func (sw *SlidingWindow) length() int32 { return int32(binary.NativeEndian.Uint32(sw.buf[offLength:])) }
func (sw *SlidingWindow) setLength(v int32) {
	binary.NativeEndian.PutUint32(sw.buf[offLength:], uint32(v))
}
func (sw *SlidingWindow) start() int32 { return int32(binary.NativeEndian.Uint32(sw.buf[offStart:])) }
func (sw *SlidingWindow) setStart(v int32) {
	binary.NativeEndian.PutUint32(sw.buf[offStart:], uint32(v))
}
func (sw *SlidingWindow) dataAt(i int32) int32 {
	off := offData + int(i)*4
	return int32(binary.NativeEndian.Uint32(sw.buf[off:]))
}
func (sw *SlidingWindow) setDataAt(i int32, v int32) {
	off := offData + int(i)*4
	binary.NativeEndian.PutUint32(sw.buf[off:], uint32(v))
}

// Push writes x into the next ring slot, evicting the oldest element if
// the window is already full, and returns the window for chaining (§4.6).
func (sw *SlidingWindow) Push(x int32) (*SlidingWindow, error) {
	if err := sw.set.MetaLock(); err != nil {
		return nil, err
	}
	defer sw.set.MetaUnlock()

	maxSize, length, start := sw.maxSize(), sw.length(), sw.start()
	if length == maxSize {
		start = (start + 1) % maxSize
	} else {
		length++
	}
	sw.setDataAt((start+length-1)%maxSize, x)
	sw.setStart(start)
	sw.setLength(length)
	return sw, nil
}

// Values returns the window's contents in chronological order (oldest
// first).
func (sw *SlidingWindow) Values() ([]int32, error) {
	if err := sw.set.MetaLock(); err != nil {
		return nil, err
	}
	defer sw.set.MetaUnlock()

	length, start, maxSize := sw.length(), sw.start(), sw.maxSize()
	out := make([]int32, length)
	for i := int32(0); i < length; i++ {
		out[i] = sw.dataAt((start + i) % maxSize)
	}
	return out, nil
}

// First returns the oldest element and whether the window is non-empty.
func (sw *SlidingWindow) First() (int32, bool, error) {
	if err := sw.set.MetaLock(); err != nil {
		return 0, false, err
	}
	defer sw.set.MetaUnlock()
	if sw.length() == 0 {
		return 0, false, nil
	}
	return sw.dataAt(sw.start()), true, nil
}

// Last returns the newest element and whether the window is non-empty.
func (sw *SlidingWindow) Last() (int32, bool, error) {
	if err := sw.set.MetaLock(); err != nil {
		return 0, false, err
	}
	defer sw.set.MetaUnlock()
	length := sw.length()
	if length == 0 {
		return 0, false, nil
	}
	return sw.dataAt((sw.start() + length - 1) % sw.maxSize()), true, nil
}

// Clear empties the window without touching max_size.
func (sw *SlidingWindow) Clear() error {
	if err := sw.set.MetaLock(); err != nil {
		return err
	}
	defer sw.set.MetaUnlock()
	sw.setLength(0)
	sw.setStart(0)
	return nil
}

// Reject walks the window backward from newest to oldest, invoking pred
// once per element; elements for which pred returns true are removed.
// Survivors are compacted toward the back in original order, runtime
// Θ(n) (§4.6).
func (sw *SlidingWindow) Reject(pred func(int32) bool) error {
	if err := sw.set.MetaLock(); err != nil {
		return err
	}
	defer sw.set.MetaUnlock()

	length, start, maxSize := sw.length(), sw.start(), sw.maxSize()
	if length == 0 {
		return nil
	}

	write := start + length - 1 // index (mod maxSize) to write the next survivor, walking backward
	survivors := int32(0)
	for i := length - 1; i >= 0; i-- {
		idx := (start + i) % maxSize
		v := sw.dataAt(idx)
		if pred(v) {
			continue
		}
		dst := ((write % maxSize) + maxSize) % maxSize
		sw.setDataAt(dst, v)
		write--
		survivors++
	}

	newStart := ((write+1)%maxSize + maxSize) % maxSize
	sw.setStart(newStart)
	sw.setLength(survivors)
	return nil
}

// ResizeTo grows or shrinks the window's capacity in place (§4.6).
//
// Grow: if the live region does not wrap (start+length <= old_max), it is
// already contiguous and nothing moves; start and length are unchanged
// and max_size simply increases. If it wraps, the older block
// [start..old_max) is moved forward by offset = new_max - old_max so that
// it sits immediately before the now-larger wrap point, start advances by
// the same offset, and the newer wrapped block [0..end)
// (end = (start+length) mod old_max) stays in place, reachable by
// wrapping through 0 exactly as before. This holds at the
// length == max_size boundary too, where the older block is
// data[start:old_max) and the newer block is data[0:start).
//
// Shrink: new_length = min(length, new_max), keeping the most recent
// new_length elements. If the live region does not wrap, the retained
// elements are copied down to [0, new_length). If it does, the buffer is
// rotated with the classical three-reversal in-place algorithm so the
// window becomes contiguous at [0, length), and the retained suffix is
// then shifted down to [0, new_length). Either way start is reset to 0.
func (sw *SlidingWindow) ResizeTo(newMax int32) error {
	if newMax > MaxCapacity {
		newMax = MaxCapacity
	}
	if err := sw.set.MetaLock(); err != nil {
		return err
	}
	defer sw.set.MetaUnlock()

	oldMax, length, start := sw.maxSize(), sw.length(), sw.start()

	if newMax >= oldMax {
		sw.growTo(newMax, oldMax, length, start)
		return nil
	}
	sw.shrinkTo(newMax, oldMax, length, start)
	return nil
}

func (sw *SlidingWindow) growTo(newMax, oldMax, length, start int32) {
	wraps := start+length > oldMax
	if !wraps {
		sw.setMaxSize(newMax)
		return
	}
	offset := newMax - oldMax
	// Move the older block [start, oldMax) forward by offset, highest
	// index first so a slot is always read before it is overwritten
	// (destination indices are strictly greater than source indices).
	// The newer wrapped block [0, end) needs no data movement: it keeps
	// its physical slots and becomes reachable again once start advances
	// past oldMax and the modulus wraps through the new capacity.
	for i := oldMax - 1; i >= start; i-- {
		sw.setDataAt(i+offset, sw.dataAt(i))
	}
	sw.setStart(start + offset)
	sw.setMaxSize(newMax)
}

func (sw *SlidingWindow) shrinkTo(newMax, oldMax, length, start int32) {
	newLength := length
	if newLength > newMax {
		newLength = newMax
	}
	dropped := length - newLength

	wraps := start+length > oldMax
	if !wraps {
		for i := int32(0); i < newLength; i++ {
			sw.setDataAt(i, sw.dataAt(start+dropped+i))
		}
		sw.setStart(0)
		sw.setMaxSize(newMax)
		sw.setLength(newLength)
		return
	}

	// Left-rotate the full oldMax-slot buffer by start, via the classical
	// three-reversal algorithm (reverse each part, then reverse the
	// whole), Θ(oldMax) with no auxiliary buffer. This re-aligns index 0
	// to the window's oldest element for the whole ring, not just the
	// occupied region, since the rotation is defined over all oldMax
	// slots; the occupied window then sits contiguously at [0, length).
	sw.rotateLeft(oldMax, start)
	// Drop the oldest `dropped` elements by shifting the retained
	// newLength-element suffix down to [0, newLength).
	for i := int32(0); i < newLength; i++ {
		sw.setDataAt(i, sw.dataAt(i+dropped))
	}
	sw.setStart(0)
	sw.setLength(newLength)
	sw.setMaxSize(newMax)
}

// rotateLeft rotates the first n buffer slots left by amount in place,
// using the classical three-reversal algorithm: reverse [0,amount),
// reverse [amount,n), reverse [0,n). Θ(n), O(1) auxiliary space.
func (sw *SlidingWindow) rotateLeft(n, amount int32) {
	if amount == 0 || amount == n {
		return
	}
	sw.reverseRange(0, amount-1)
	sw.reverseRange(amount, n-1)
	sw.reverseRange(0, n-1)
}

func (sw *SlidingWindow) reverseRange(lo, hi int32) {
	for lo < hi {
		a, b := sw.dataAt(lo), sw.dataAt(hi)
		sw.setDataAt(lo, b)
		sw.setDataAt(hi, a)
		lo++
		hi--
	}
}

// Detach unmaps the segment from this process without removing it.
func (sw *SlidingWindow) Detach() error {
	return sw.seg.Detach()
}

// Remove marks the segment for deletion (operator/test cleanup path).
func (sw *SlidingWindow) Remove() error {
	return sw.seg.Remove()
}

// MaxSize returns the current configured capacity.
func (sw *SlidingWindow) MaxSize() (int32, error) {
	if err := sw.set.MetaLock(); err != nil {
		return 0, err
	}
	defer sw.set.MetaUnlock()
	return sw.maxSize(), nil
}

// Package simpleinteger implements a 64-bit counter in shared memory,
// guarded by its resource's META_LOCK (§4.5).
package simpleinteger

import (
	"encoding/binary"

	"semian-go/ipc/sysv"
	"semian-go/key"
)

const segmentSize = 8 // one int64, little/native-endian per-host

// SimpleInteger is a handle to a shared 64-bit counter. All mutations are
// serialized by the owning resource's META_LOCK rather than a private
// lock, matching the sliding window's locking discipline.
type SimpleInteger struct {
	set *sysv.SemaphoreSet
	seg *sysv.Segment
	buf []byte
}

// New creates or attaches the shared segment for name, deriving its key
// with the "_integer" discriminator suffix, and returns a handle guarded
// by set's META_LOCK.
func New(set *sysv.SemaphoreSet, name string, perm uint16) (*SimpleInteger, error) {
	k := key.AuxKey(name, "_integer")
	seg, _, err := sysv.CreateOrAttachSegment(k, segmentSize, perm)
	if err != nil {
		return nil, err
	}
	buf, err := seg.Attach()
	if err != nil {
		return nil, err
	}
	return &SimpleInteger{set: set, seg: seg, buf: buf}, nil
}

// Value returns the current value under META_LOCK.
func (s *SimpleInteger) Value() (int64, error) {
	if err := s.set.MetaLock(); err != nil {
		return 0, err
	}
	defer s.set.MetaUnlock()
	return s.read(), nil
}

// SetValue overwrites the counter and returns the new value, both under
// META_LOCK (§4.5: "returned to the caller after the mutation under the
// same lock").
func (s *SimpleInteger) SetValue(v int64) (int64, error) {
	if err := s.set.MetaLock(); err != nil {
		return 0, err
	}
	defer s.set.MetaUnlock()
	s.write(v)
	return v, nil
}

// Reset sets the counter to zero and returns it.
func (s *SimpleInteger) Reset() (int64, error) {
	return s.SetValue(0)
}

// Increment adds by to the counter and returns the new value, under
// META_LOCK.
func (s *SimpleInteger) Increment(by int64) (int64, error) {
	if err := s.set.MetaLock(); err != nil {
		return 0, err
	}
	defer s.set.MetaUnlock()
	v := s.read() + by
	s.write(v)
	return v, nil
}

// Detach unmaps the segment from this process without removing it (§4.5:
// "Detaches on drop; does not remove the segment").
func (s *SimpleInteger) Detach() error {
	return s.seg.Detach()
}

func (s *SimpleInteger) read() int64 {
	return int64(binary.NativeEndian.Uint64(s.buf))
}

func (s *SimpleInteger) write(v int64) {
	binary.NativeEndian.PutUint64(s.buf, uint64(v))
}

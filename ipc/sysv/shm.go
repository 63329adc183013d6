package sysv

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"

	semerr "semian-go/errors"
)

// shmAt/shmDt/shmCtl flags and commands not exposed portably by x/sys/unix.
const (
	shmRdonly = 0o10000
	shmRmid   = 0
)

// Segment is a handle to a System V shared-memory segment backing one
// auxiliary structure (a sliding window's ring buffer, a PID controller's
// counters and history). Like SemaphoreSet, it has no private lifetime:
// the segment persists across the handle's process until an explicit
// Remove or OS-level cleanup.
type Segment struct {
	ID   int
	Key  uint32
	Size int
	addr uintptr
}

// CreateOrAttachSegment opens the shared-memory segment for key at the
// given size, creating it if absent, mirroring SemaphoreSet.CreateOrAttach's
// exclusive-create-then-fallback-open sequence.
func CreateOrAttachSegment(k uint32, size int, perm uint16) (seg *Segment, wasCreator bool, err error) {
	id, errno := shmget(k, size, int(perm)|ipcCreat|ipcExcl)
	if errno == 0 {
		return &Segment{ID: id, Key: k, Size: size}, true, nil
	}
	if errno != syscall.EEXIST {
		return nil, false, semerr.WrapSyscall("shmget", "create_or_attach", "", errno)
	}

	id, errno = shmget(k, size, int(perm))
	if errno != 0 {
		return nil, false, semerr.WrapSyscall("shmget", "create_or_attach", "", errno)
	}
	return &Segment{ID: id, Key: k, Size: size}, false, nil
}

// Attach maps the segment into this process's address space. Callers must
// call Detach when done; the mapping does not survive process exit either
// way, but an unmapped-but-undestroyed segment leaks until IPC_RMID.
func (sg *Segment) Attach() ([]byte, error) {
	addr, errno := shmat(sg.ID, 0)
	if errno != 0 {
		return nil, semerr.WrapSyscall("shmat", "attach", "", errno)
	}
	sg.addr = addr
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), sg.Size), nil
}

// Detach unmaps a previously attached segment from this process.
func (sg *Segment) Detach() error {
	if sg.addr == 0 {
		return nil
	}
	errno := shmdt(sg.addr)
	sg.addr = 0
	if errno != 0 {
		return semerr.WrapSyscall("shmdt", "detach", "", errno)
	}
	return nil
}

// Remove destroys the segment (IPC_RMID). EINVAL is treated as success:
// the segment was already gone.
func (sg *Segment) Remove() error {
	_, _, errno := syscall.Syscall(uintptr(unix.SYS_SHMCTL), uintptr(sg.ID), uintptr(shmRmid), 0)
	if errno != 0 && errno != syscall.EINVAL {
		return semerr.WrapSyscall("shmctl", "remove", "", errno)
	}
	return nil
}

func shmget(k uint32, size int, flags int) (int, syscall.Errno) {
	id, _, errno := syscall.Syscall(uintptr(unix.SYS_SHMGET), uintptr(k), uintptr(size), uintptr(flags))
	return int(id), errno
}

func shmat(id int, flags int) (uintptr, syscall.Errno) {
	addr, _, errno := syscall.Syscall(uintptr(unix.SYS_SHMAT), uintptr(id), 0, uintptr(flags))
	return addr, errno
}

func shmdt(addr uintptr) syscall.Errno {
	_, _, errno := syscall.Syscall(uintptr(unix.SYS_SHMDT), addr, 0, 0)
	return errno
}

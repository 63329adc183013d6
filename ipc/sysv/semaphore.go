// Package sysv wraps the System V IPC primitives (semaphore sets and shared
// memory segments) that back every cross-process structure in semian-go:
// the bulkhead's ticket inventory, the sliding window's ring buffer, and the
// PID controller's counters all live in kernel IPC rather than in a
// language-level global, so that unrelated processes sharing a host can
// coordinate on a named resource without a broker.
//
// golang.org/x/sys/unix does not expose a portable, ABI-stable Semop/Semctl
// pair with SysV union semantics, so this package issues the syscalls
// directly: syscall.Syscall/Syscall6 with the unix.SYS_SEM*/unix.SYS_SHM*
// trap numbers, the same pattern this repo already uses for setns (a named
// syscall number from x/sys/unix, a raw argument list via the standard
// library's syscall package), with the kernel ABI structs it needs defined
// locally since x/sys/unix has no portable type for them.
package sysv

import (
	"fmt"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	semerr "semian-go/errors"
	"semian-go/timeutil"
)

// Semaphore indices within a resource's 5-wide set (§3).
const (
	IdxMetaLock          = 0
	IdxTickets           = 1
	IdxConfiguredTickets = 2
	IdxRegisteredWorkers = 3
	IdxOtimeWitness      = 4

	// NumSems is the fixed cardinality of a resource's semaphore set.
	NumSems = 5
)

// IPC control flags and semctl commands. These are not exposed by
// golang.org/x/sys/unix as portable constants; the values below match
// <bits/ipc.h> / <linux/sem.h> on every architecture Go supports.
const (
	ipcCreat = 0o1000
	ipcExcl  = 0o2000
	ipcRmid  = 0
	ipcSet   = 1
	ipcStat  = 2

	getVal = 12
	setVal = 16

	// semUndo marks a semop to be reversed automatically when the calling
	// process exits (crash or otherwise): the mechanism §9 of the spec
	// relies on for ticket and worker-registration crash recovery.
	semUndo = 0o10000
)

const maxEintrRetries = 5

// metaLockTimeout is the internal bound for acquiring META_LOCK (§4.2).
const metaLockTimeout = 5 * time.Second

// otimePollInterval / otimePollBound govern the waiter-creator handshake
// (§4.2): waiters poll sem_otime every 10ms for up to 5s.
const (
	otimePollInterval = 10 * time.Millisecond
	otimePollBound    = 5 * time.Second
)

// ipcPerm mirrors struct ipc64_perm from <linux/ipc.h>, the permission
// block embedded at the front of semid64_ds/shmid64_ds.
type ipcPerm struct {
	Key  int32
	UID  uint32
	GID  uint32
	CUID uint32
	CGID uint32
	Mode uint32
	_    uint16
	Seq  uint16
	_    uint16
	_    uint16
	_    uint64
	_    uint64
}

// semid64DS mirrors struct semid64_ds from <linux/sem.h>, used for
// IPC_STAT/IPC_SET so we can read sem_otime (the waiter-creator barrier).
type semid64DS struct {
	Perm  ipcPerm
	Otime int64
	_     uint64
	Ctime int64
	_     uint64
	NSems uint64
	_     uint64
	_     uint64
}

// sembuf mirrors struct sembuf from <linux/sem.h>, the per-operation
// argument to semop/semtimedop.
type sembuf struct {
	Num uint16
	Op  int16
	Flg int16
}

// SemaphoreSet is a handle to a System V semaphore set backing one
// resource. It carries no in-process lifetime over the kernel object: the
// set is shared by every process that opens the same key, and it persists
// until an explicit Destroy or OS-level IPC cleanup (§3).
type SemaphoreSet struct {
	ID  int
	Key uint32
}

// CreateOrAttach opens the semaphore set for key, creating it if absent.
// It reports whether this call was the creator so the caller can run the
// one-time initialization path (§4.2: exclusive-create first, fall back to
// open on EEXIST). The creator's set starts with META_LOCK unlocked (1) and
// every other semaphore at 0.
func CreateOrAttach(k uint32, perm uint16) (set *SemaphoreSet, wasCreator bool, err error) {
	set, wasCreator, err = CreateOrAttachN(k, NumSems, perm)
	if err != nil || !wasCreator {
		return set, wasCreator, err
	}
	if err := set.Set(IdxMetaLock, 1); err != nil {
		return nil, false, err
	}
	return set, true, nil
}

// CreateOrAttachN is CreateOrAttach with an explicit semaphore count,
// for auxiliary structures that need a set narrower than a resource's
// standard 5-wide one (the PID controller's two-semaphore robust-mutex
// substitute). It initializes no semaphore values: every member of a newly
// created set starts at 0.
func CreateOrAttachN(k uint32, nsems int, perm uint16) (set *SemaphoreSet, wasCreator bool, err error) {
	id, errno := semget(k, nsems, int(perm)|ipcCreat|ipcExcl)
	if errno == 0 {
		return &SemaphoreSet{ID: id, Key: k}, true, nil
	}
	if errno != syscall.EEXIST {
		return nil, false, semerr.WrapSyscall("semget", "create_or_attach", "", errno)
	}

	id, errno = semget(k, nsems, int(perm))
	if errno != 0 {
		return nil, false, semerr.WrapSyscall("semget", "create_or_attach", "", errno)
	}

	set = &SemaphoreSet{ID: id, Key: k}
	if err := set.syncPermissions(perm); err != nil {
		return nil, false, err
	}
	return set, false, nil
}

// syncPermissions sets the UNIX permission bits if they differ from the
// set's current bits (§4.2).
func (s *SemaphoreSet) syncPermissions(perm uint16) error {
	var ds semid64DS
	if err := s.ctl(0, ipcStat, uintptr(unsafe.Pointer(&ds))); err != nil {
		return err
	}
	if uint16(ds.Perm.Mode&0o777) == perm {
		return nil
	}
	ds.Perm.Mode = (ds.Perm.Mode &^ 0o777) | uint32(perm)
	return s.ctl(0, ipcSet, uintptr(unsafe.Pointer(&ds)))
}

// Otime returns the semaphore set's sem_otime: zero until some process has
// performed at least one successful semop against the set.
func (s *SemaphoreSet) Otime() (int64, error) {
	var ds semid64DS
	if err := s.ctl(0, ipcStat, uintptr(unsafe.Pointer(&ds))); err != nil {
		return 0, err
	}
	return ds.Otime, nil
}

// Ctime returns the semaphore set's sem_ctime: the time of the last
// semctl-triggered change (SETVAL, IPC_SET, or creation), distinct from
// sem_otime, which advances on every ordinary semop.
func (s *SemaphoreSet) Ctime() (int64, error) {
	var ds semid64DS
	if err := s.ctl(0, ipcStat, uintptr(unsafe.Pointer(&ds))); err != nil {
		return 0, err
	}
	return ds.Ctime, nil
}

// WaitForOtime blocks until sem_otime is nonzero (the creator has
// published initialization) or the 5s bound elapses (§4.2).
func (s *SemaphoreSet) WaitForOtime() error {
	deadline := timeutil.NowMs() + otimePollBound.Milliseconds()
	for {
		otime, err := s.Otime()
		if err != nil {
			return err
		}
		if otime != 0 {
			return nil
		}
		if timeutil.NowMs() >= deadline {
			return semerr.ErrOtimeTimeout
		}
		time.Sleep(otimePollInterval)
	}
}

// PublishInitialization is the creator's sole barrier: any semop touching
// the set advances sem_otime, so an increment-decrement pair on
// REGISTERED_WORKERS both performs real work (the first registration) and
// satisfies waiters polling WaitForOtime (§4.2).
func (s *SemaphoreSet) PublishInitialization() error {
	return s.PublishOn(IdxRegisteredWorkers)
}

// PublishOn is PublishInitialization generalized to an arbitrary index,
// for narrower auxiliary sets that have no REGISTERED_WORKERS slot.
func (s *SemaphoreSet) PublishOn(index uint16) error {
	if err := s.Op(index, 1, 0, nil); err != nil {
		return err
	}
	return s.Op(index, -1, 0, nil)
}

// Op performs a single semop, blocking unless flags carries IPC_NOWAIT. A
// nil timeout means semop (unbounded); a non-nil timeout uses semtimedop.
// EINTR is retried up to maxEintrRetries times before surfacing as a
// Syscall error (§4.2, §5).
func (s *SemaphoreSet) Op(index uint16, delta int16, flags int16, timeout *time.Duration) error {
	sb := []sembuf{{Num: index, Op: delta, Flg: flags}}

	for attempt := 0; attempt <= maxEintrRetries; attempt++ {
		var errno syscall.Errno
		if timeout == nil {
			errno = semop(s.ID, sb)
		} else {
			ts := timeutil.MsToTimespec(timeout.Milliseconds())
			errno = semtimedop(s.ID, sb, &ts)
		}
		switch errno {
		case 0:
			return nil
		case syscall.EINTR:
			continue
		case syscall.EAGAIN:
			return semerr.ErrAcquireTimeout
		case syscall.EIDRM:
			return semerr.ErrSemaphoreMissing
		default:
			return semerr.WrapSyscall("semop", "op", "", errno)
		}
	}
	return semerr.WrapSyscall("semop", "op", "", syscall.EINTR)
}

// FlagUndo is the SEM_UNDO flag: OR it into the flags argument of Op to
// have the kernel reverse this semop automatically on process exit.
const FlagUndo = semUndo

// FlagNoWait is IPC_NOWAIT: OR it into flags to fail immediately with
// EAGAIN instead of blocking.
const FlagNoWait = 0o4000

// Get reads the current value of one semaphore in the set.
func (s *SemaphoreSet) Get(index uint16) (int, error) {
	v, errno := semctlVal(s.ID, int(index), getVal)
	if errno != 0 {
		return 0, semerr.WrapSyscall("semctl", "get", "", errno)
	}
	return v, nil
}

// Set writes the value of one semaphore in the set directly, bypassing
// semop's delta semantics. Used for administrative resets
// (ResetRegisteredWorkers) rather than steady-state accounting.
func (s *SemaphoreSet) Set(index uint16, value int) error {
	_, _, errno := syscall.Syscall6(uintptr(unix.SYS_SEMCTL), uintptr(s.ID), uintptr(index), uintptr(setVal), uintptr(value), 0, 0)
	if errno != 0 {
		return semerr.WrapSyscall("semctl", "set", "", errno)
	}
	return nil
}

// MetaLock acquires the META_LOCK semaphore (index 0) with the internal 5s
// timeout (§4.2).
func (s *SemaphoreSet) MetaLock() error {
	timeout := metaLockTimeout
	if err := s.Op(IdxMetaLock, -1, 0, &timeout); err != nil {
		if semerr.IsKind(err, semerr.ErrKindTimeout) {
			return semerr.ErrMetaLockTimeout
		}
		return err
	}
	return nil
}

// MetaUnlock releases META_LOCK unconditionally; it never blocks.
func (s *SemaphoreSet) MetaUnlock() error {
	return s.Op(IdxMetaLock, 1, 0, nil)
}

// Destroy removes the semaphore set after acquiring META_LOCK, so
// destruction serializes with concurrent acquirers (§4.4). EINVAL/EIDRM are
// treated as success: the set was already gone.
func (s *SemaphoreSet) Destroy() error {
	if err := s.MetaLock(); err != nil {
		var serr *semerr.SemianError
		if semerr.IsKind(err, semerr.ErrKindSemaphoreMissing) ||
			(semerr.As(err, &serr) && serr.Errno == syscall.EINVAL) {
			return nil
		}
		return err
	}
	_, _, errno := syscall.Syscall6(uintptr(unix.SYS_SEMCTL), uintptr(s.ID), 0, uintptr(ipcRmid), 0, 0, 0)
	if errno != 0 && errno != syscall.EINVAL && errno != syscall.EIDRM {
		return semerr.WrapSyscall("semctl", "destroy", "", errno)
	}
	return nil
}

// ctl issues a raw semctl with a pointer argument (IPC_STAT/IPC_SET).
func (s *SemaphoreSet) ctl(num int, cmd int, arg uintptr) error {
	_, _, errno := syscall.Syscall6(uintptr(unix.SYS_SEMCTL), uintptr(s.ID), uintptr(num), uintptr(cmd), arg, 0, 0)
	if errno != 0 {
		return semerr.WrapSyscall("semctl", fmt.Sprintf("cmd=%d", cmd), "", errno)
	}
	return nil
}

func semget(k uint32, nsems int, flags int) (int, syscall.Errno) {
	id, _, errno := syscall.Syscall(uintptr(unix.SYS_SEMGET), uintptr(k), uintptr(nsems), uintptr(flags))
	return int(id), errno
}

func semop(id int, sops []sembuf) syscall.Errno {
	_, _, errno := syscall.Syscall(uintptr(unix.SYS_SEMOP), uintptr(id), uintptr(unsafe.Pointer(&sops[0])), uintptr(len(sops)))
	return errno
}

func semtimedop(id int, sops []sembuf, ts *unix.Timespec) syscall.Errno {
	_, _, errno := syscall.Syscall6(uintptr(unix.SYS_SEMTIMEDOP), uintptr(id), uintptr(unsafe.Pointer(&sops[0])),
		uintptr(len(sops)), uintptr(unsafe.Pointer(ts)), 0, 0)
	return errno
}

func semctlVal(id int, num int, cmd int) (int, syscall.Errno) {
	r, _, errno := syscall.Syscall6(uintptr(unix.SYS_SEMCTL), uintptr(id), uintptr(num), uintptr(cmd), 0, 0, 0)
	return int(r), errno
}

package pid

import (
	"os"
	"syscall"
	"time"

	semerr "semian-go/errors"
	"semian-go/ipc/sysv"
)

// lockTimeout bounds a single RobustMutex.Lock attempt before it falls
// back to the owner-liveness check.
const lockTimeout = 200 * time.Millisecond

// RobustMutex is a process-shared mutex that survives a crashed holder.
// Go has no cgo-free binding for pthread_mutex_t with
// PTHREAD_MUTEX_ROBUST, so this substitutes a binary SysV semaphore (the
// lock proper) plus an owner-pid word stored alongside it in shared
// memory: Lock first tries the semaphore with a short timeout; on
// timeout, it checks whether the recorded owner is still alive via
// syscall.Kill(pid, 0) (signal 0 only probes whether the process
// exists), and if not, steals the semaphore and reports
// OwnerDead so the caller can mark the protected state consistent,
// mirroring EOWNERDEAD/pthread_mutex_consistent (§9 Open Question,
// resolved: see DESIGN.md).
//
// A second, narrow semaphore (recoveryIndex) arbitrates the steal itself:
// two waiters can observe the same dead owner in the same instant, and
// without arbitration both would call Set and both would believe they
// hold the lock. Only the waiter that wins a non-blocking claim on the
// recovery semaphore performs the steal; the loser falls through to
// ordinary contention retry, by which point the winner's pid is visible.
type RobustMutex struct {
	set           *sysv.SemaphoreSet
	index         uint16
	recoveryIndex uint16
	ownerAddr     []byte // 4-byte native-endian owner pid, embedded in the caller's shared segment
}

// NewRobustMutex wraps semaphore index on set as a robust mutex whose
// owner-pid word lives at ownerAddr (a 4-byte slice into shared memory).
// recoveryIndex names a second semaphore in the same set, used solely to
// arbitrate owner-dead recovery. The creator must call Init once before
// any Lock.
func NewRobustMutex(set *sysv.SemaphoreSet, index, recoveryIndex uint16, ownerAddr []byte) *RobustMutex {
	return &RobustMutex{set: set, index: index, recoveryIndex: recoveryIndex, ownerAddr: ownerAddr}
}

// Init sets the main semaphore to the unlocked value (1), the recovery
// semaphore to available (1), and clears the owner word. Called once by
// the creator before publishing initialization.
func (m *RobustMutex) Init() error {
	putPid(m.ownerAddr, 0)
	if err := m.set.Set(m.index, 1); err != nil {
		return err
	}
	return m.set.Set(m.recoveryIndex, 1)
}

// Lock acquires the mutex, blocking up to lockTimeout before attempting
// owner-death recovery, and repeating until it succeeds. It returns
// ErrOwnerDead (not a failure) when the prior owner's pid is no longer
// alive and the lock was reclaimed; the caller must treat the protected
// state as possibly partially updated, consistent with the spec's "at
// most one stale observation" tolerance.
func (m *RobustMutex) Lock() error {
	for {
		timeout := lockTimeout
		err := m.set.Op(m.index, -1, 0, &timeout)
		if err == nil {
			putPid(m.ownerAddr, os.Getpid())
			return nil
		}
		if !semerr.IsKind(err, semerr.ErrKindTimeout) {
			return err
		}

		ownerPid := getPid(m.ownerAddr)
		if ownerPid != 0 && isAlive(ownerPid) {
			continue // legitimate contention: retry
		}
		// ownerPid == 0 means either the mutex is uncontended (a false
		// timeout we will not see twice) or a holder crashed in the
		// narrow window between decrementing the semaphore and
		// recording its pid; either way it is safe to attempt recovery.

		// Claim the right to perform the steal. Only one racing waiter
		// wins this non-blocking decrement; the rest fall through to
		// retry at the top of the loop, where the winner's pid will
		// already be visible as a live owner.
		if err := m.set.Op(m.recoveryIndex, -1, sysv.FlagNoWait, nil); err != nil {
			if semerr.IsKind(err, semerr.ErrKindTimeout) {
				continue // another waiter is recovering, or already has
			}
			return err
		}

		// Owner is dead and we hold exclusive recovery rights. Steal the
		// lock: set the semaphore back to the locked value directly (it
		// may be at 0 already if the dead owner never released, or
		// momentarily higher under a race; Set pins it to the locked
		// state for us).
		stealErr := m.set.Set(m.index, 0)
		if stealErr == nil {
			putPid(m.ownerAddr, os.Getpid())
		}
		if err := m.set.Op(m.recoveryIndex, 1, 0, nil); err != nil {
			return err
		}
		if stealErr != nil {
			return stealErr
		}
		return semerr.ErrOwnerDead
	}
}

// Unlock releases the mutex and clears the owner word.
func (m *RobustMutex) Unlock() error {
	putPid(m.ownerAddr, 0)
	return m.set.Op(m.index, 1, 0, nil)
}

func isAlive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}

func getPid(addr []byte) int {
	return int(int32(addr[0]) | int32(addr[1])<<8 | int32(addr[2])<<16 | int32(addr[3])<<24)
}

func putPid(addr []byte, pid int) {
	addr[0] = byte(pid)
	addr[1] = byte(pid >> 8)
	addr[2] = byte(pid >> 16)
	addr[3] = byte(pid >> 24)
}

// Package errors provides predefined sentinel errors for common failure cases.
package errors

// Configuration errors (§7: BadConfig, never retried).
var (
	// ErrZeroTickets indicates configure was called with CONFIGURED_TICKETS
	// == 0 and desired == 0: the initial state forbids zero tickets.
	ErrZeroTickets = &SemianError{
		Kind:   ErrKindBadConfig,
		Detail: "initial ticket count cannot be zero",
	}

	// ErrBothTicketsAndQuota indicates both static tickets and a quota were
	// supplied; exactly one must be set.
	ErrBothTicketsAndQuota = &SemianError{
		Kind:   ErrKindBadConfig,
		Detail: "exactly one of static tickets or quota must be set",
	}

	// ErrInvalidQuota indicates a quota outside (0, 1].
	ErrInvalidQuota = &SemianError{
		Kind:   ErrKindBadConfig,
		Detail: "quota must be in (0, 1]",
	}

	// ErrInvalidTicketCount indicates a negative or otherwise invalid
	// static ticket count.
	ErrInvalidTicketCount = &SemianError{
		Kind:   ErrKindBadConfig,
		Detail: "static ticket count must be positive",
	}

	// ErrNotRegistered indicates quota mode was used before the calling
	// process registered itself against the resource.
	ErrNotRegistered = &SemianError{
		Kind:   ErrKindBadConfig,
		Detail: "process must register before configuring a quota resource",
	}
)

// Timeout errors (§7: surfaced with resource name; callers may retry).
var (
	// ErrAcquireTimeout indicates a ticket acquire did not complete before
	// its deadline.
	ErrAcquireTimeout = &SemianError{
		Kind:   ErrKindTimeout,
		Detail: "ticket acquire timed out",
	}

	// ErrMetaLockTimeout indicates META_LOCK could not be acquired within
	// its internal 5s bound.
	ErrMetaLockTimeout = &SemianError{
		Kind:   ErrKindTimeout,
		Detail: "meta lock acquire timed out",
	}

	// ErrReconcileTimeout indicates a negative ticket delta could not be
	// applied (not enough tickets free) within the internal 5s bound.
	ErrReconcileTimeout = &SemianError{
		Kind:   ErrKindTimeout,
		Detail: "ticket reconciliation timed out waiting for tickets to free",
	}
)

// Semaphore-missing errors (§7: EIDRM observed mid-operation).
var (
	// ErrSemaphoreMissing indicates the semaphore set backing a resource
	// was removed while this process still referenced it.
	ErrSemaphoreMissing = &SemianError{
		Kind:   ErrKindSemaphoreMissing,
		Detail: "semaphore set no longer exists",
	}
)

// Internal errors (§7: fatal for the resource handle).
var (
	// ErrMutexInitFailed indicates the process-shared robust mutex backing
	// a PID controller could not be initialized.
	ErrMutexInitFailed = &SemianError{
		Kind:   ErrKindInternal,
		Detail: "failed to initialize process-shared mutex",
	}

	// ErrPIDInitTimeout indicates a waiter polled the PID controller's
	// `initialized` flag for 5s without it becoming set.
	ErrPIDInitTimeout = &SemianError{
		Kind:   ErrKindInternal,
		Detail: "timed out waiting for PID controller initialization",
	}

	// ErrOtimeTimeout indicates a waiter polled sem_otime for 5s without
	// the creator publishing initialization.
	ErrOtimeTimeout = &SemianError{
		Kind:   ErrKindInternal,
		Detail: "timed out waiting for semaphore set initialization",
	}

	// ErrInvariantViolation indicates a state the core considers
	// unreachable (e.g. tickets observed out of [0, configured] range).
	ErrInvariantViolation = &SemianError{
		Kind:   ErrKindInternal,
		Detail: "invariant violation",
	}

	// ErrOwnerDead indicates a RobustMutex holder died without
	// releasing; the caller has reclaimed the lock and must treat the
	// protected state as possibly partially updated (EOWNERDEAD
	// analogue). Not a failure: callers check for it with errors.Is and
	// proceed.
	ErrOwnerDead = &SemianError{
		Kind:   ErrKindInternal,
		Detail: "mutex owner died, lock reclaimed",
	}
)

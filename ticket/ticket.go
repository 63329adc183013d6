// Package ticket implements the reconciliation algorithm that turns a
// resource's configured capacity (a fixed ticket count, or a quota of the
// registered worker count) into an actual adjustment of the TICKETS
// semaphore, applied atomically under the resource's META_LOCK.
package ticket

import (
	"errors"
	"math"
	"time"

	semerr "semian-go/errors"
	"semian-go/ipc/sysv"
)

// Mode selects how Reconcile computes the desired ticket count.
type Mode int

const (
	// ModeStatic uses Options.StaticTickets directly.
	ModeStatic Mode = iota
	// ModeQuota computes ceil(REGISTERED_WORKERS * Options.Quota).
	ModeQuota
)

// reconcileTimeout bounds a negative ticket delta waiting for enough
// tickets to free up (§4.3: "bounded by a 5-second internal timeout").
const reconcileTimeout = 5 * time.Second

// Options parameterizes a single Reconcile call.
type Options struct {
	Mode          Mode
	StaticTickets int
	Quota         float64
}

// Validate checks the invariants required before Reconcile may run:
// a non-negative static ticket count, or a quota in (0, 1]. A static
// count of zero passes here and is handled by Reconcile's zero-ticket
// check.
func (o Options) Validate() error {
	switch o.Mode {
	case ModeStatic:
		if o.StaticTickets < 0 {
			return semerr.ErrInvalidTicketCount
		}
	case ModeQuota:
		if o.Quota <= 0 || o.Quota > 1 {
			return semerr.ErrInvalidQuota
		}
	}
	return nil
}

// Reconcile computes the desired ticket count and applies the delta to
// TICKETS under META_LOCK, then updates CONFIGURED_TICKETS (§4.3). Quota
// mode assumes the caller has already registered itself (incremented
// REGISTERED_WORKERS) so the computed ceiling accounts for this process.
func Reconcile(set *sysv.SemaphoreSet, opts Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}

	if err := set.MetaLock(); err != nil {
		return err
	}
	defer set.MetaUnlock()

	desired, err := desiredTickets(set, opts)
	if err != nil {
		return err
	}

	configured, err := set.Get(sysv.IdxConfiguredTickets)
	if err != nil {
		return err
	}

	if configured == 0 && desired == 0 {
		return semerr.ErrZeroTickets
	}
	if desired == 0 {
		// Late-join path: nothing to reconcile yet (e.g. quota mode
		// before any worker has registered).
		return nil
	}

	delta := desired - configured
	if delta != 0 {
		timeout := reconcileTimeout
		if err := set.Op(sysv.IdxTickets, int16(delta), 0, &timeout); err != nil {
			if errors.Is(err, semerr.ErrAcquireTimeout) {
				return semerr.ErrReconcileTimeout
			}
			return err
		}
	}

	return set.Set(sysv.IdxConfiguredTickets, desired)
}

func desiredTickets(set *sysv.SemaphoreSet, opts Options) (int, error) {
	switch opts.Mode {
	case ModeStatic:
		return opts.StaticTickets, nil
	case ModeQuota:
		workers, err := set.Get(sysv.IdxRegisteredWorkers)
		if err != nil {
			return 0, err
		}
		return int(math.Ceil(float64(workers) * opts.Quota)), nil
	default:
		return 0, semerr.New(semerr.ErrKindBadConfig, "reconcile", "unknown ticket mode")
	}
}

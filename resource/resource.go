// Package resource implements the bulkhead: a bounded, cross-process pool
// of tickets backed by a SysV semaphore set, optionally sized as a quota
// of the registered worker count.
package resource

import (
	"os"
	"time"

	semerr "semian-go/errors"
	"semian-go/ipc/sysv"
	"semian-go/key"
	"semian-go/logging"
	"semian-go/ticket"
	"semian-go/timeutil"
)

// DefaultPermissions is the UNIX octal mode applied when a Config leaves
// Permissions unset (§6: "default 0660").
const DefaultPermissions = 0o660

// Config describes how to register a resource. Exactly one of
// StaticTickets or Quota must be set.
type Config struct {
	// Name is the resource's identity; its IPC key is derived from it.
	Name string
	// StaticTickets, if nonzero, fixes the ticket count directly.
	StaticTickets int
	// Quota, if nonzero, sizes the ticket count as ceil(workers * Quota).
	Quota float64
	// Permissions is the UNIX mode for the semaphore set; 0 defaults to
	// DefaultPermissions.
	Permissions uint16
	// DefaultTimeout bounds Acquire when no override is given.
	DefaultTimeout time.Duration
	// QuotaGraceSeconds: if the semaphore set changed within this many
	// seconds of now, Acquire substitutes QuotaGraceTimeout for the
	// configured default, so cold-start workers are not immediately
	// rejected while the fleet is still registering (§ SUPPLEMENTED
	// FEATURES: quota-grace window).
	QuotaGraceSeconds int
	// QuotaGraceTimeout is the substituted timeout while inside the
	// grace window. Ignored if QuotaGraceSeconds is zero.
	QuotaGraceTimeout time.Duration
}

func (c Config) mode() (ticket.Options, error) {
	hasStatic := c.StaticTickets != 0
	hasQuota := c.Quota != 0
	if hasStatic == hasQuota {
		return ticket.Options{}, semerr.ErrBothTicketsAndQuota
	}
	if hasStatic {
		if c.StaticTickets < 0 {
			return ticket.Options{}, semerr.ErrInvalidTicketCount
		}
		return ticket.Options{Mode: ticket.ModeStatic, StaticTickets: c.StaticTickets}, nil
	}
	return ticket.Options{Mode: ticket.ModeQuota, Quota: c.Quota}, nil
}

// Resource is a handle to a registered bulkhead. It carries no exclusive
// ownership over the underlying semaphore set: any number of processes
// may hold a Resource for the same name simultaneously.
type Resource struct {
	set            *sysv.SemaphoreSet
	name           string
	cfg            Config
	registeredSelf bool
}

// Register derives the resource's key, creates or attaches its semaphore
// set, resolves the creator/waiter race, registers this process as a
// worker (SEM_UNDO), and runs the ticket reconciler (§4.4).
func Register(cfg Config) (*Resource, error) {
	opts, err := cfg.mode()
	if err != nil {
		return nil, err
	}

	perm := cfg.Permissions
	if perm == 0 {
		perm = DefaultPermissions
	}

	k := key.ResourceKey(cfg.Name)
	fields := logging.Fields{Resource: cfg.Name, Key: key.Hex(k), WaitMs: -1}
	log := fields.Logger(logging.Default())

	set, wasCreator, err := sysv.CreateOrAttach(k, perm)
	if err != nil {
		return nil, semerr.WrapWithResource(err, semerr.ErrKindSyscall, "register", cfg.Name)
	}

	fields.SemID = set.ID
	log = fields.Logger(logging.Default())

	if wasCreator {
		if err := set.PublishInitialization(); err != nil {
			return nil, err
		}
		log.Debug("created semaphore set")
	} else {
		if err := set.WaitForOtime(); err != nil {
			return nil, err
		}
		log.Debug("attached to existing semaphore set")
	}

	if err := set.Op(sysv.IdxRegisteredWorkers, 1, sysv.FlagUndo, nil); err != nil {
		return nil, err
	}

	r := &Resource{set: set, name: cfg.Name, cfg: cfg, registeredSelf: true}

	if err := ticket.Reconcile(set, opts); err != nil {
		return nil, err
	}

	log.Info("registered resource", "tickets", cfg.StaticTickets, "quota", cfg.Quota)
	return r, nil
}

// TicketGuard represents a held ticket. Release returns it to the pool;
// Release is idempotent only within a single guard (§4.4: Held -> Released
// state machine).
type TicketGuard struct {
	resource *Resource
	released bool
	// WaitTimeMs is the wall-clock time, measured via CLOCK_MONOTONIC,
	// between the Acquire call and the successful ticket decrement.
	WaitTimeMs int64
}

// Release returns the ticket to the pool. Calling Release more than once
// on the same guard is a no-op.
func (g *TicketGuard) Release() error {
	if g.released {
		return nil
	}
	g.released = true
	return g.resource.set.Op(sysv.IdxTickets, 1, sysv.FlagUndo, nil)
}

// Acquire blocks until a ticket is available or the timeout elapses. With
// no override it uses cfg.DefaultTimeout, or the quota-grace timeout inside
// the grace window; an explicit override, including zero, takes precedence
// over both.
func (r *Resource) Acquire(timeoutOverride ...time.Duration) (*TicketGuard, error) {
	timeout := r.cfg.DefaultTimeout
	if len(timeoutOverride) > 0 {
		timeout = timeoutOverride[0]
	} else if grace, ok := r.withinQuotaGrace(); ok {
		timeout = grace
	}

	start := timeutil.NowMs()
	if err := r.set.Op(sysv.IdxTickets, -1, sysv.FlagUndo, &timeout); err != nil {
		return nil, err
	}
	waitMs := timeutil.DiffMs(start, timeutil.NowMs())

	logging.LogAcquire(logging.Default(), logging.Fields{
		Resource: r.name,
		SemID:    r.set.ID,
		PID:      os.Getpid(),
		WaitMs:   waitMs,
	}, slowAcquireThreshold)

	return &TicketGuard{resource: r, WaitTimeMs: waitMs}, nil
}

// slowAcquireThreshold is the wait time above which Acquire logs at Warn
// instead of Info: an occasional slow acquire is expected under quota
// grace or reconfiguration, but worth surfacing.
const slowAcquireThreshold = 250 * time.Millisecond

// withinQuotaGrace reports whether the semaphore set's ticket count was
// last reconfigured recently enough that Acquire should substitute the
// grace timeout, and what that timeout is. This keys off sem_ctime (bumped
// by SETVAL calls such as ticket.Reconcile's), not sem_otime (bumped by every
// ordinary Acquire/Release), so the grace window shrinks away as the
// fleet finishes booting rather than persisting while traffic flows.
func (r *Resource) withinQuotaGrace() (time.Duration, bool) {
	if r.cfg.QuotaGraceSeconds <= 0 {
		return 0, false
	}
	ctime, err := r.set.Ctime()
	if err != nil {
		return 0, false
	}
	age := time.Since(time.Unix(ctime, 0))
	if age < time.Duration(r.cfg.QuotaGraceSeconds)*time.Second {
		return r.cfg.QuotaGraceTimeout, true
	}
	return 0, false
}

// UnregisterWorker decrements REGISTERED_WORKERS without blocking; being
// already at zero is not an error (§4.4).
func (r *Resource) UnregisterWorker() error {
	if !r.registeredSelf {
		return nil
	}
	err := r.set.Op(sysv.IdxRegisteredWorkers, -1, sysv.FlagNoWait, nil)
	if semerr.IsKind(err, semerr.ErrKindTimeout) {
		r.registeredSelf = false
		return nil
	}
	if err == nil {
		r.registeredSelf = false
	}
	return err
}

// ResetRegisteredWorkers sets REGISTERED_WORKERS to zero directly. This
// purges the SEM_UNDO state every registered process was relying on to
// auto-decrement on exit, so it is restricted to operator tooling and must
// never be called from the Acquire/Release paths (§9 Open Question,
// resolved).
func (r *Resource) ResetRegisteredWorkers() error {
	return r.set.Set(sysv.IdxRegisteredWorkers, 0)
}

// Destroy removes the semaphore set. EINVAL/EIDRM are treated as success
// (§4.4).
func (r *Resource) Destroy() error {
	return r.set.Destroy()
}

// Tickets returns the live ticket inventory.
func (r *Resource) Tickets() (int, error) {
	return r.set.Get(sysv.IdxTickets)
}

// Count returns the configured maximum ticket count.
func (r *Resource) Count() (int, error) {
	return r.set.Get(sysv.IdxConfiguredTickets)
}

// RegisteredWorkers returns the number of processes currently registered.
func (r *Resource) RegisteredWorkers() (int, error) {
	return r.set.Get(sysv.IdxRegisteredWorkers)
}

// Key returns the resource's IPC key as an 8-hex-digit string (§6).
func (r *Resource) Key() string {
	return key.Hex(r.set.Key)
}

// ID returns the opaque semaphore set identifier.
func (r *Resource) ID() int {
	return r.set.ID
}

// Set returns the resource's underlying semaphore set, so a sliding
// window or other auxiliary structure keyed off the same name can share
// its META_LOCK rather than taking a private one.
func (r *Resource) Set() *sysv.SemaphoreSet {
	return r.set
}

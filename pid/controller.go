// Package pid implements the host-wide adaptive-rejection controller: a
// process-shared, crash-robust feedback loop that turns observed error
// and ping-failure rates into a rejection probability consulted by a
// pre-acquire predicate (§4.7).
package pid

import (
	"encoding/binary"
	"errors"
	"math"
	"math/rand"
	"os"
	"sort"
	"sync/atomic"
	"time"
	"unsafe"

	semerr "semian-go/errors"
	"semian-go/ipc/sysv"
	"semian-go/key"
	"semian-go/timeutil"
)

// HistoryLength is the ABI-fixed length of the per-window error-rate
// history ring (§6: "fixed at 360 entries").
const HistoryLength = 360

// Shared-segment field offsets. Every float64/int64 scalar has its own
// 8-byte slot; the int32 fields are packed two to a slot (history index
// and count, initialized flag and creator pid), and the 4-byte owner-pid
// word has a slot to itself.
const (
	offKp              = 8 * 0
	offKi              = 8 * 1
	offKd              = 8 * 2
	offWindowSeconds   = 8 * 3
	offTargetErrorRate = 8 * 4
	offSuccess         = 8 * 5
	offError           = 8 * 6
	offRejected        = 8 * 7
	offPingSuccess     = 8 * 8
	offPingFailure     = 8 * 9
	offLastErrRate     = 8 * 10
	offLastPingFailRate = 8 * 11
	offIntegral        = 8 * 12
	offPrevErr         = 8 * 13
	offRejectionRate   = 8 * 14
	offWindowStartMs   = 8 * 15
	offHistoryIndex    = 8 * 16 // int32, upper 4 bytes unused
	offHistoryCount    = 8*16 + 4
	offInitialized     = 8 * 17 // int32
	offCreatorPid      = 8*17 + 4
	offOwnerPid        = 8 * 18 // RobustMutex owner word, 4 bytes
	offHistory         = 8 * 19

	// lockSemIndex/recoverySemIndex are the controller's dedicated
	// semaphore set's two members: the robust mutex proper, and the
	// narrow semaphore that arbitrates owner-dead recovery so only one
	// racing waiter steals the lock.
	lockSemIndex      = 0
	recoverySemIndex  = 1
	numControllerSems = 2

	segmentSize = offHistory + HistoryLength*8
)

const (
	initWaitStart = time.Millisecond
	initWaitCap   = 100 * time.Millisecond
	initWaitBound = 5 * time.Second
)

// Outcome classifies a single recorded request (§4.7).
type Outcome int

const (
	Success Outcome = iota
	Error
	Rejected
)

// PingOutcome classifies a single recorded liveness ping.
type PingOutcome int

const (
	PingSuccess PingOutcome = iota
	PingFailure
)

// Config parameterizes a new or attached controller. Only the creator's
// values take effect; a waiter attaching to an existing controller reads
// the creator's published configuration instead.
type Config struct {
	Name            string
	Kp, Ki, Kd      float64
	WindowSize      time.Duration
	TargetErrorRate float64
	Permissions     uint16
}

// Controller is a handle to a shared PID controller. Multiple processes
// sharing Config.Name observe and drive the same rejection rate.
type Controller struct {
	seg    *sysv.Segment
	semSet *sysv.SemaphoreSet
	buf    []byte
	mu     *RobustMutex
}

// NewController creates or attaches the controller for cfg.Name. The
// creator zeroes memory (freshly allocated shared memory already reads as
// zero), initializes the robust mutex, writes configuration, then
// publishes initialized=1 as the last step so no waiter observes partial
// state. Waiters poll initialized with exponential back-off from 1ms,
// capped at 100ms, failing after 5s (§4.7).
func NewController(cfg Config) (*Controller, error) {
	perm := cfg.Permissions
	if perm == 0 {
		perm = 0o660
	}
	k := key.AuxKey(cfg.Name, key.SuffixPID)

	semSet, _, err := sysv.CreateOrAttachN(k, numControllerSems, perm)
	if err != nil {
		return nil, err
	}
	seg, wasCreator, err := sysv.CreateOrAttachSegment(k, segmentSize, perm)
	if err != nil {
		return nil, err
	}
	buf, err := seg.Attach()
	if err != nil {
		return nil, err
	}

	c := &Controller{seg: seg, semSet: semSet, buf: buf}
	c.mu = NewRobustMutex(semSet, lockSemIndex, recoverySemIndex, buf[offOwnerPid:offOwnerPid+4])

	if wasCreator {
		if err := c.mu.Init(); err != nil {
			return nil, semerr.Wrap(err, semerr.ErrKindInternal, "pid_init")
		}
		c.putFloat(offKp, cfg.Kp)
		c.putFloat(offKi, cfg.Ki)
		c.putFloat(offKd, cfg.Kd)
		c.putFloat(offWindowSeconds, cfg.WindowSize.Seconds())
		c.putFloat(offTargetErrorRate, cfg.TargetErrorRate)
		c.putInt64(offWindowStartMs, timeutil.NowMs())
		c.putInt32(offCreatorPid, int32(os.Getpid()))
		atomic.StoreInt32(c.initializedPtr(), 1)
		return c, nil
	}

	if err := c.waitForInitialized(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Controller) initializedPtr() *int32 {
	return (*int32)(unsafe.Pointer(&c.buf[offInitialized]))
}

func (c *Controller) waitForInitialized() error {
	deadline := timeutil.NowMs() + initWaitBound.Milliseconds()
	wait := initWaitStart
	for atomic.LoadInt32(c.initializedPtr()) == 0 {
		if timeutil.NowMs() >= deadline {
			return semerr.ErrPIDInitTimeout
		}
		time.Sleep(wait)
		wait *= 2
		if wait > initWaitCap {
			wait = initWaitCap
		}
	}
	return nil
}

func (c *Controller) withLock(fn func()) error {
	err := c.mu.Lock()
	if err != nil && !errors.Is(err, semerr.ErrOwnerDead) {
		return err
	}
	defer c.mu.Unlock()
	fn()
	return nil
}

// RecordRequest increments the counter for outcome under the mutex
// (§4.7: "lock-then-increment; they may not allocate").
func (c *Controller) RecordRequest(outcome Outcome) error {
	return c.withLock(func() {
		switch outcome {
		case Success:
			c.addInt64(offSuccess, 1)
		case Error:
			c.addInt64(offError, 1)
		case Rejected:
			c.addInt64(offRejected, 1)
		}
	})
}

// RecordPing increments the ping counter for outcome under the mutex.
func (c *Controller) RecordPing(outcome PingOutcome) error {
	return c.withLock(func() {
		switch outcome {
		case PingSuccess:
			c.addInt64(offPingSuccess, 1)
		case PingFailure:
			c.addInt64(offPingFailure, 1)
		}
	})
}

// Update runs one control-loop step: snapshot and reset window counters,
// append the observed error rate to history, compute the adaptive target,
// apply the PID law, and clamp the resulting rejection rate to [0, 1]
// (§4.7 "Update (once per window)").
func (c *Controller) Update() (float64, error) {
	var rate float64
	err := c.withLock(func() {
		success := c.getInt64(offSuccess)
		errCount := c.getInt64(offError)
		pingSuccess := c.getInt64(offPingSuccess)
		pingFailure := c.getInt64(offPingFailure)

		errRate := rateOf(errCount, success+errCount)
		pingFailRate := rateOf(pingFailure, pingSuccess+pingFailure)

		c.pushHistory(errRate)

		c.putInt64(offSuccess, 0)
		c.putInt64(offError, 0)
		c.putInt64(offRejected, 0)
		c.putInt64(offPingSuccess, 0)
		c.putInt64(offPingFailure, 0)
		c.putInt64(offWindowStartMs, timeutil.NowMs())
		c.putFloat(offLastErrRate, errRate)
		c.putFloat(offLastPingFailRate, pingFailRate)

		ideal := c.idealErrorRate()

		rejectionRate := c.getFloat(offRejectionRate)
		integral := c.getFloat(offIntegral)
		prevErr := c.getFloat(offPrevErr)
		dt := c.getFloat(offWindowSeconds)
		if dt <= 0 {
			dt = 1
		}
		kp, ki, kd := c.getFloat(offKp), c.getFloat(offKi), c.getFloat(offKd)

		health := (errRate - ideal) - (rejectionRate - pingFailRate)
		integral += health * dt
		u := kp*health + ki*integral + kd*(health-prevErr)/dt

		rejectionRate = clamp(rejectionRate+u, 0, 1)

		c.putFloat(offIntegral, integral)
		c.putFloat(offPrevErr, health)
		c.putFloat(offRejectionRate, rejectionRate)
		rate = rejectionRate
	})
	return rate, err
}

// ShouldReject samples a uniform real in [0, 1) and returns true iff it
// is strictly less than rejection_rate. The Open Question over a locked
// vs. unlocked read is resolved to locked, since RobustMutex's owner-pid
// word makes rejection_rate not a single machine word we could otherwise
// read tear-free (§9).
func (c *Controller) ShouldReject() (bool, error) {
	var reject bool
	err := c.withLock(func() {
		rate := c.getFloat(offRejectionRate)
		reject = rand.Float64() < rate
	})
	return reject, err
}

// Metrics is a point-in-time snapshot of the controller's observable
// state, read under the mutex (SUPPLEMENTED FEATURES: external
// consumption of internal rates and window counters).
type Metrics struct {
	RejectionRate    float64
	ErrRate          float64
	PingFailureRate  float64
	Success          int64
	Error            int64
	Rejected         int64
	PingSuccess      int64
	PingFailure      int64
}

// Metrics returns a Metrics snapshot under the mutex.
func (c *Controller) Metrics() (Metrics, error) {
	var m Metrics
	err := c.withLock(func() {
		m = Metrics{
			RejectionRate:   c.getFloat(offRejectionRate),
			ErrRate:         c.getFloat(offLastErrRate),
			PingFailureRate: c.getFloat(offLastPingFailRate),
			Success:         c.getInt64(offSuccess),
			Error:           c.getInt64(offError),
			Rejected:        c.getInt64(offRejected),
			PingSuccess:     c.getInt64(offPingSuccess),
			PingFailure:     c.getInt64(offPingFailure),
		}
	})
	return m, err
}

// Destroy detaches the shared segment from this process; the OS reaps it
// once the last attachment detaches (§4.7: "Destruction: detach only").
func (c *Controller) Destroy() error {
	return c.seg.Detach()
}

// Remove explicitly marks the segment, and the backing semaphore set used
// by the robust mutex substitute, for deletion. Operator/test cleanup
// path; ordinary processes should call Destroy instead.
func (c *Controller) Remove() error {
	if err := c.seg.Remove(); err != nil {
		return err
	}
	return c.semSet.Destroy()
}

// idealErrorRate implements §4.7 step 3: the configured target if
// positive, else the p90 of history capped at 0.1, defaulting to 0.01
// when history is empty.
func (c *Controller) idealErrorRate() float64 {
	if target := c.getFloat(offTargetErrorRate); target > 0 {
		return target
	}
	count := int(c.getInt32(offHistoryCount))
	if count == 0 {
		return 0.01
	}
	values := make([]float64, count)
	for i := 0; i < count; i++ {
		values[i] = c.getFloat(offHistory + i*8)
	}
	sort.Float64s(values)
	p90 := percentile(values, 0.9)
	if p90 > 0.1 {
		p90 = 0.1
	}
	return p90
}

func (c *Controller) pushHistory(errRate float64) {
	idx := c.getInt32(offHistoryIndex)
	c.putFloat(offHistory+int(idx)*8, errRate)
	idx = (idx + 1) % HistoryLength
	c.putInt32(offHistoryIndex, idx)
	count := c.getInt32(offHistoryCount)
	if count < HistoryLength {
		c.putInt32(offHistoryCount, count+1)
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func rateOf(num, denom int64) float64 {
	if denom <= 0 {
		return 0
	}
	return float64(num) / float64(denom)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// --- raw field access (caller must hold the mutex) ---

func (c *Controller) getFloat(off int) float64 {
	return math.Float64frombits(binary.NativeEndian.Uint64(c.buf[off:]))
}
func (c *Controller) putFloat(off int, v float64) {
	binary.NativeEndian.PutUint64(c.buf[off:], math.Float64bits(v))
}
func (c *Controller) getInt64(off int) int64 {
	return int64(binary.NativeEndian.Uint64(c.buf[off:]))
}
func (c *Controller) putInt64(off int, v int64) {
	binary.NativeEndian.PutUint64(c.buf[off:], uint64(v))
}
func (c *Controller) addInt64(off int, delta int64) {
	c.putInt64(off, c.getInt64(off)+delta)
}
func (c *Controller) getInt32(off int) int32 {
	return int32(binary.NativeEndian.Uint32(c.buf[off:]))
}
func (c *Controller) putInt32(off int, v int32) {
	binary.NativeEndian.PutUint32(c.buf[off:], uint32(v))
}

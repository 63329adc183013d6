package resource

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	semerr "semian-go/errors"
)

func uniqueName(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf("semian_test_%s_%d", t.Name(), time.Now().UnixNano())
}

func registerOrSkip(t *testing.T, cfg Config) *Resource {
	t.Helper()
	r, err := Register(cfg)
	if err != nil {
		var serr *semerr.SemianError
		if errors.As(err, &serr) && serr.Kind == semerr.ErrKindSyscall {
			t.Skipf("SysV IPC unavailable in this environment: %v", err)
		}
		t.Fatalf("Register failed: %v", err)
	}
	t.Cleanup(func() { _ = r.Destroy() })
	return r
}

func TestRegister_StaticTickets(t *testing.T) {
	r := registerOrSkip(t, Config{
		Name:           uniqueName(t),
		StaticTickets:  4,
		DefaultTimeout: time.Second,
	})

	tickets, err := r.Tickets()
	if err != nil {
		t.Fatalf("Tickets failed: %v", err)
	}
	if tickets != 4 {
		t.Errorf("expected 4 tickets, got %d", tickets)
	}

	count, _ := r.Count()
	if count != 4 {
		t.Errorf("expected count=4, got %d", count)
	}
}

func TestRegister_RejectsBothTicketsAndQuota(t *testing.T) {
	_, err := Register(Config{Name: uniqueName(t), StaticTickets: 4, Quota: 0.5})
	if !errors.Is(err, semerr.ErrBothTicketsAndQuota) {
		t.Errorf("expected ErrBothTicketsAndQuota, got %v", err)
	}
}

func TestRegister_RejectsNeitherTicketsNorQuota(t *testing.T) {
	_, err := Register(Config{Name: uniqueName(t)})
	if !errors.Is(err, semerr.ErrBothTicketsAndQuota) {
		t.Errorf("expected ErrBothTicketsAndQuota for empty config, got %v", err)
	}
}

func TestAcquireRelease_RoundTrip(t *testing.T) {
	r := registerOrSkip(t, Config{
		Name:           uniqueName(t),
		StaticTickets:  2,
		DefaultTimeout: time.Second,
	})

	guard, err := r.Acquire()
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	tickets, _ := r.Tickets()
	if tickets != 1 {
		t.Errorf("expected 1 ticket held, got %d free", tickets)
	}

	if err := guard.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	tickets, _ = r.Tickets()
	if tickets != 2 {
		t.Errorf("expected tickets restored to 2, got %d", tickets)
	}

	// Release is idempotent.
	if err := guard.Release(); err != nil {
		t.Errorf("second Release should be a no-op, got: %v", err)
	}
}

func TestAcquire_FourConcurrentHoldersFifthTimesOut(t *testing.T) {
	r := registerOrSkip(t, Config{
		Name:           uniqueName(t),
		StaticTickets:  4,
		DefaultTimeout: 100 * time.Millisecond,
	})

	var wg sync.WaitGroup
	guards := make([]*TicketGuard, 4)
	for i := 0; i < 4; i++ {
		g, err := r.Acquire(time.Second)
		if err != nil {
			t.Fatalf("acquire %d failed: %v", i, err)
		}
		guards[i] = g
	}

	_, err := r.Acquire(50 * time.Millisecond)
	if !errors.Is(err, semerr.ErrAcquireTimeout) {
		t.Errorf("expected fifth acquire to time out, got %v", err)
	}

	if err := guards[0].Release(); err != nil {
		t.Fatalf("release failed: %v", err)
	}

	wg.Add(1)
	var sixthErr error
	go func() {
		defer wg.Done()
		_, sixthErr = r.Acquire(time.Second)
	}()
	wg.Wait()
	if sixthErr != nil {
		t.Errorf("sixth acquire after release should succeed, got %v", sixthErr)
	}

	for _, g := range guards[1:] {
		_ = g.Release()
	}
}

func TestQuotaMode_ScalesWithWorkerCount(t *testing.T) {
	name := uniqueName(t)

	r1 := registerOrSkip(t, Config{Name: name, Quota: 0.5, DefaultTimeout: time.Second})

	count, _ := r1.Count()
	if count != 1 {
		t.Errorf("expected ceil(1*0.5)=1 after first registration, got %d", count)
	}

	r2, err := Register(Config{Name: name, Quota: 0.5, DefaultTimeout: time.Second})
	if err != nil {
		t.Fatalf("second Register failed: %v", err)
	}
	t.Cleanup(func() { _ = r2.Destroy() })

	count, _ = r1.Count()
	if count != 1 {
		t.Errorf("expected ceil(2*0.5)=1 after second registration, got %d", count)
	}
}

func TestUnregisterWorker_DecrementsAndIsIdempotentAtZero(t *testing.T) {
	r := registerOrSkip(t, Config{Name: uniqueName(t), StaticTickets: 2, DefaultTimeout: time.Second})

	workers, _ := r.RegisteredWorkers()
	if workers != 1 {
		t.Fatalf("expected 1 registered worker, got %d", workers)
	}

	if err := r.UnregisterWorker(); err != nil {
		t.Fatalf("UnregisterWorker failed: %v", err)
	}
	workers, _ = r.RegisteredWorkers()
	if workers != 0 {
		t.Errorf("expected 0 registered workers, got %d", workers)
	}

	if err := r.UnregisterWorker(); err != nil {
		t.Errorf("second UnregisterWorker at zero should not error, got %v", err)
	}
}

func TestDestroy_IsIdempotent(t *testing.T) {
	r := registerOrSkip(t, Config{Name: uniqueName(t), StaticTickets: 1, DefaultTimeout: time.Second})

	if err := r.Destroy(); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	if err := r.Destroy(); err != nil {
		t.Errorf("second Destroy should be a no-op, got: %v", err)
	}
}

func TestAcquire_ConcurrentNeverExceedsConfigured(t *testing.T) {
	r := registerOrSkip(t, Config{Name: uniqueName(t), StaticTickets: 3, DefaultTimeout: 500 * time.Millisecond})

	var held int64
	var maxHeld int64
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g, err := r.Acquire(200 * time.Millisecond)
			if err != nil {
				return
			}
			n := atomic.AddInt64(&held, 1)
			for {
				cur := atomic.LoadInt64(&maxHeld)
				if n <= cur || atomic.CompareAndSwapInt64(&maxHeld, cur, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt64(&held, -1)
			_ = g.Release()
		}()
	}
	wg.Wait()

	if maxHeld > 3 {
		t.Errorf("observed %d simultaneously held guards, configured=3", maxHeld)
	}
}

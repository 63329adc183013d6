package sysv

import (
	"errors"
	"testing"
	"time"

	semerr "semian-go/errors"
)

// newTestSet creates a fresh semaphore set under a key unlikely to collide
// with a real resource, skipping the test if SysV IPC is unavailable in
// this environment (sandboxed kernel, seccomp filter, disabled IPC
// namespace).
func newTestSet(t *testing.T) *SemaphoreSet {
	t.Helper()
	k := uint32(0x53454d00) | uint32(time.Now().UnixNano()&0xff)
	set, _, err := CreateOrAttach(k, 0o600)
	if err != nil {
		var serr *semerr.SemianError
		if errors.As(err, &serr) && serr.Kind == semerr.ErrKindSyscall {
			t.Skipf("SysV semaphores unavailable in this environment: %v", err)
		}
		t.Fatalf("CreateOrAttach failed: %v", err)
	}
	t.Cleanup(func() { _ = set.Destroy() })
	return set
}

func TestCreateOrAttach_CreatesNewSet(t *testing.T) {
	set := newTestSet(t)
	if set.ID < 0 {
		t.Fatalf("expected valid semaphore id, got %d", set.ID)
	}
}

func TestCreateOrAttach_SecondCallAttaches(t *testing.T) {
	set := newTestSet(t)

	again, wasCreator, err := CreateOrAttach(set.Key, 0o600)
	if err != nil {
		t.Fatalf("second CreateOrAttach failed: %v", err)
	}
	if wasCreator {
		t.Error("expected second CreateOrAttach to attach, not create")
	}
	if again.ID != set.ID {
		t.Errorf("expected same semaphore id, got %d != %d", again.ID, set.ID)
	}
}

func TestOp_IncrementAndGet(t *testing.T) {
	set := newTestSet(t)

	if err := set.Op(IdxTickets, 3, 0, nil); err != nil {
		t.Fatalf("Op increment failed: %v", err)
	}
	v, err := set.Get(IdxTickets)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if v != 3 {
		t.Errorf("expected tickets=3, got %d", v)
	}
}

func TestOp_BlocksUntilAvailable(t *testing.T) {
	set := newTestSet(t)

	done := make(chan error, 1)
	go func() {
		done <- set.Op(IdxTickets, -1, 0, nil)
	}()

	select {
	case <-done:
		t.Fatal("decrement on zero-valued semaphore returned before increment")
	case <-time.After(50 * time.Millisecond):
	}

	if err := set.Op(IdxTickets, 1, 0, nil); err != nil {
		t.Fatalf("increment failed: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("blocked decrement returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocked decrement never unblocked")
	}
}

func TestOp_TimesOut(t *testing.T) {
	set := newTestSet(t)

	timeout := 50 * time.Millisecond
	err := set.Op(IdxTickets, -1, 0, &timeout)
	if !errors.Is(err, semerr.ErrAcquireTimeout) {
		t.Errorf("expected ErrAcquireTimeout, got %v", err)
	}
}

func TestMetaLockUnlock(t *testing.T) {
	set := newTestSet(t)

	if err := set.MetaLock(); err != nil {
		t.Fatalf("MetaLock failed: %v", err)
	}
	if err := set.MetaUnlock(); err != nil {
		t.Fatalf("MetaUnlock failed: %v", err)
	}
}

func TestSet_OverwritesValue(t *testing.T) {
	set := newTestSet(t)

	if err := set.Set(IdxConfiguredTickets, 42); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	v, err := set.Get(IdxConfiguredTickets)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if v != 42 {
		t.Errorf("expected 42, got %d", v)
	}
}

func TestWaitForOtime_AfterPublish(t *testing.T) {
	set := newTestSet(t)

	if err := set.PublishInitialization(); err != nil {
		t.Fatalf("PublishInitialization failed: %v", err)
	}
	if err := set.WaitForOtime(); err != nil {
		t.Errorf("WaitForOtime after publish should not block: %v", err)
	}
}

func TestDestroy_RemovesSet(t *testing.T) {
	set := newTestSet(t)

	if err := set.Destroy(); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	// Destroying again must not error (EINVAL/EIDRM treated as success).
	if err := set.Destroy(); err != nil {
		t.Errorf("second Destroy should be a no-op, got: %v", err)
	}
}

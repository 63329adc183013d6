package key

import "testing"

func TestResourceKey_Deterministic(t *testing.T) {
	a := ResourceKey("mysql_primary")
	b := ResourceKey("mysql_primary")
	if a != b {
		t.Errorf("ResourceKey not deterministic: %d != %d", a, b)
	}
}

func TestResourceKey_DistinctNames(t *testing.T) {
	a := ResourceKey("mysql_primary")
	b := ResourceKey("mysql_replica")
	if a == b {
		t.Error("expected distinct names to produce distinct keys (overwhelmingly likely)")
	}
}

func TestAuxKey_DistinctFromResourceKey(t *testing.T) {
	name := "mysql_primary"
	resourceKey := ResourceKey(name)
	pidKey := AuxKey(name, SuffixPID)
	windowKey := AuxKey(name, SuffixSlidingWindow)

	if resourceKey == pidKey || resourceKey == windowKey || pidKey == windowKey {
		t.Errorf("expected resource/pid/window keys to be pairwise distinct, got %d %d %d",
			resourceKey, pidKey, windowKey)
	}
}

func TestHex(t *testing.T) {
	got := Hex(0xdeadbeef)
	want := "0xdeadbeef"
	if got != want {
		t.Errorf("Hex(0xdeadbeef) = %q, want %q", got, want)
	}

	if got := Hex(0x1); got != "0x00000001" {
		t.Errorf("Hex(0x1) = %q, want zero-padded to 8 digits", got)
	}
}

package cache

import (
	"testing"
	"time"
)

func TestLRU_SetGet(t *testing.T) {
	c := NewLRU(10, time.Minute)

	c.Set("k", []byte("v"))

	got, ok := c.Get("k")
	if !ok {
		t.Fatal("expected hit after Set")
	}
	if string(got) != "v" {
		t.Errorf("expected value 'v', got %q", got)
	}
}

func TestLRU_MissOnUnknownKey(t *testing.T) {
	c := NewLRU(10, time.Minute)

	if _, ok := c.Get("absent"); ok {
		t.Error("expected miss for unknown key")
	}
}

func TestLRU_EntriesExpire(t *testing.T) {
	c := NewLRU(10, 20*time.Millisecond)

	c.Set("k", []byte("v"))
	if _, ok := c.Get("k"); !ok {
		t.Fatal("expected hit before expiry")
	}

	time.Sleep(50 * time.Millisecond)

	if _, ok := c.Get("k"); ok {
		t.Error("expected miss after TTL elapsed")
	}
}

func TestLRU_CapacityPressureEvicts(t *testing.T) {
	c := NewLRU(2, time.Minute)

	c.Set("a", []byte("1"))
	c.Set("b", []byte("2"))
	c.Set("c", []byte("3"))

	// Oldest entry is gone, the newest two remain.
	if _, ok := c.Get("a"); ok {
		t.Error("expected oldest entry to be evicted")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("expected newest entry to survive")
	}
}

// panickyCache simulates an unavailable cache backend.
type panickyCache struct{}

func (panickyCache) Get(string) ([]byte, bool) { panic("backend down") }
func (panickyCache) Set(string, []byte)        { panic("backend down") }

func TestDegrading_FailuresBecomeMisses(t *testing.T) {
	d := NewDegrading(panickyCache{}, nil)

	if _, ok := d.Get("k"); ok {
		t.Error("expected failed Get to report a miss")
	}

	// Must not panic.
	d.Set("k", []byte("v"))
}

func TestDegrading_PassesThrough(t *testing.T) {
	d := NewDegrading(NewLRU(4, time.Minute), nil)

	d.Set("k", []byte("v"))
	got, ok := d.Get("k")
	if !ok || string(got) != "v" {
		t.Errorf("expected pass-through hit, got ok=%v value=%q", ok, got)
	}
}

func TestKey_Stable(t *testing.T) {
	if Key("a", "b") != Key("a", "b") {
		t.Error("expected identical parts to derive identical keys")
	}
}

func TestKey_PartBoundariesMatter(t *testing.T) {
	if Key("ab", "c") == Key("a", "bc") {
		t.Error("expected part boundaries to affect the key")
	}
}

package chain

import (
	"testing"
	"time"
)

func TestTouchSetsFirstSeenOnce(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewContextAt(func() time.Time { return clock })

	first := c.Touch("T1")
	clock = clock.Add(30 * time.Second)
	second := c.Touch("T1")

	if !first.Equal(second) {
		t.Fatalf("first-seen overwritten: %v vs %v", first, second)
	}
	got, ok := c.FirstSeen("T1")
	if !ok || !got.Equal(first) {
		t.Fatalf("FirstSeen = %v, %v", got, ok)
	}
}

func TestElapsedUsesFirstSeen(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewContextAt(func() time.Time { return clock })
	c.Touch("T1")

	clock = clock.Add(45 * time.Second)
	d, ok := c.Elapsed("T1")
	if !ok || d != 45*time.Second {
		t.Fatalf("Elapsed = %v, %v", d, ok)
	}
	if _, ok := c.Elapsed("unknown"); ok {
		t.Fatal("Elapsed should report missing tasks")
	}
}

func TestAttemptsMonotonic(t *testing.T) {
	c := NewContext()
	if n := c.RecordAttempt("T1"); n != 1 {
		t.Fatalf("first attempt = %d", n)
	}
	if n := c.RecordAttempt("T1"); n != 2 {
		t.Fatalf("second attempt = %d", n)
	}
	if n := c.Attempts("T1"); n != 2 {
		t.Fatalf("Attempts = %d", n)
	}
	if n := c.Attempts("T2"); n != 0 {
		t.Fatalf("unseen task attempts = %d", n)
	}
}

func TestResetClearsEverything(t *testing.T) {
	c := NewContext()
	c.Touch("T1")
	c.RecordAttempt("T1")
	c.SetActiveTask("T1")
	c.SetOffset(time.Now())

	c.Reset("T2")

	if _, ok := c.FirstSeen("T1"); ok {
		t.Fatal("old first-seen survived reset")
	}
	if c.Attempts("T1") != 0 {
		t.Fatal("old attempts survived reset")
	}
	if c.ActiveTask() != "T2" {
		t.Fatalf("active = %q", c.ActiveTask())
	}
	if _, ok := c.FirstSeen("T2"); !ok {
		t.Fatal("starting task not registered")
	}
	if _, armed := c.Offset(); armed {
		t.Fatal("offset survived reset")
	}
}

func TestZeroOffsetIsNotArmed(t *testing.T) {
	c := NewContext()
	if _, armed := c.Offset(); armed {
		t.Fatal("fresh context offset should be unarmed")
	}
	c.SetOffset(time.Now())
	if _, armed := c.Offset(); !armed {
		t.Fatal("offset should be armed after SetOffset")
	}
	c.ClearOffset()
	if _, armed := c.Offset(); armed {
		t.Fatal("offset should be unarmed after ClearOffset")
	}
}

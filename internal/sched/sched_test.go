package sched

import (
	"testing"
	"time"
)

func TestAfterFiresInOrder(t *testing.T) {
	s := New()
	var got []int
	s.After(30*time.Millisecond, func() { got = append(got, 3) })
	s.After(10*time.Millisecond, func() { got = append(got, 1) })
	s.After(20*time.Millisecond, func() { got = append(got, 2) })

	s.Advance(50 * time.Millisecond)
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("got=%v", got)
	}
}

func TestAfterPartialAdvance(t *testing.T) {
	s := New()
	fired := false
	s.After(100*time.Millisecond, func() { fired = true })
	s.Advance(99 * time.Millisecond)
	if fired {
		t.Fatal("fired early")
	}
	s.Advance(1 * time.Millisecond)
	if !fired {
		t.Fatal("did not fire at due time")
	}
}

func TestCancelPreventsFire(t *testing.T) {
	s := New()
	fired := false
	h := s.After(10*time.Millisecond, func() { fired = true })
	h.Cancel()
	s.Advance(time.Second)
	if fired {
		t.Fatal("cancelled timer fired")
	}
}

func TestTimerChaining(t *testing.T) {
	s := New()
	var got []string
	s.After(10*time.Millisecond, func() {
		got = append(got, "a")
		s.After(10*time.Millisecond, func() { got = append(got, "b") })
	})
	s.Advance(30 * time.Millisecond)
	if len(got) != 2 || got[1] != "b" {
		t.Fatalf("got=%v", got)
	}
}

func TestEveryFrame(t *testing.T) {
	s := New()
	n := 0
	h := s.EveryFrame(func() { n++ })
	s.Frame()
	s.Frame()
	h.Cancel()
	s.Frame()
	if n != 2 {
		t.Fatalf("n=%d want 2", n)
	}
}

func TestDebouncerLatestWins(t *testing.T) {
	s := New()
	d := NewDebouncer(s, 16*time.Millisecond)

	got := 0
	d.Trigger(func() { got = 1 })
	s.Advance(10 * time.Millisecond)
	d.Trigger(func() { got = 2 }) // supersedes, resets the window
	s.Advance(10 * time.Millisecond)
	if got != 0 {
		t.Fatalf("fired before window elapsed: got=%d", got)
	}
	s.Advance(6 * time.Millisecond)
	if got != 2 {
		t.Fatalf("got=%d want 2 (latest wins)", got)
	}
	if d.Pending() {
		t.Fatal("still pending after fire")
	}
}

func TestDebouncerFlushAndCancel(t *testing.T) {
	s := New()
	d := NewDebouncer(s, 350*time.Millisecond)

	got := 0
	d.Trigger(func() { got++ })
	d.Flush()
	if got != 1 {
		t.Fatalf("flush did not fire: got=%d", got)
	}
	s.Advance(time.Second)
	if got != 1 {
		t.Fatalf("fired twice: got=%d", got)
	}

	d.Trigger(func() { got++ })
	d.Cancel()
	s.Advance(time.Second)
	if got != 1 {
		t.Fatalf("cancelled trigger fired: got=%d", got)
	}
	if d.Pending() {
		t.Fatal("pending after cancel")
	}
}

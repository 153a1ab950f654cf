package console

import (
	"testing"
	"time"
)

func TestSimClockFiresInDeadlineOrder(t *testing.T) {
	clock := NewSimClock()
	var order []int

	clock.AfterFunc(30*time.Millisecond, func() { order = append(order, 30) })
	clock.AfterFunc(10*time.Millisecond, func() { order = append(order, 10) })
	clock.AfterFunc(20*time.Millisecond, func() { order = append(order, 20) })

	clock.Advance(50 * time.Millisecond)

	if len(order) != 3 || order[0] != 10 || order[1] != 20 || order[2] != 30 {
		t.Errorf("Expected firing order [10 20 30], got %v", order)
	}
}

func TestSimClockPartialAdvance(t *testing.T) {
	clock := NewSimClock()
	fired := false
	clock.AfterFunc(10*time.Millisecond, func() { fired = true })

	clock.Advance(5 * time.Millisecond)
	if fired {
		t.Error("Expected timer to not fire before its deadline")
	}

	clock.Advance(5 * time.Millisecond)
	if !fired {
		t.Error("Expected timer to fire once cumulative time reaches the deadline")
	}
}

func TestSimClockStop(t *testing.T) {
	clock := NewSimClock()
	fired := false
	timer := clock.AfterFunc(10*time.Millisecond, func() { fired = true })

	if !timer.Stop() {
		t.Error("Expected Stop to report true for a pending timer")
	}
	clock.Advance(time.Second)
	if fired {
		t.Error("Expected stopped timer to not fire")
	}

	// Stopping again, or stopping after firing, reports false
	if timer.Stop() {
		t.Error("Expected second Stop to report false")
	}

	timer2 := clock.AfterFunc(5*time.Millisecond, func() {})
	clock.Advance(10 * time.Millisecond)
	if timer2.Stop() {
		t.Error("Expected Stop after firing to report false")
	}
}

func TestSimClockTimersFireOnce(t *testing.T) {
	clock := NewSimClock()
	count := 0
	clock.AfterFunc(10*time.Millisecond, func() { count++ })

	clock.Advance(20 * time.Millisecond)
	clock.Advance(20 * time.Millisecond)
	if count != 1 {
		t.Errorf("Expected timer to fire exactly once, fired %d times", count)
	}
}

func TestSimClockCascadingTimers(t *testing.T) {
	// A callback scheduling its own follow-up within the advance window
	// fires in the same Advance call, at the right simulated time
	clock := NewSimClock()
	var order []string
	clock.AfterFunc(10*time.Millisecond, func() {
		order = append(order, "first")
		clock.AfterFunc(5*time.Millisecond, func() { order = append(order, "second") })
	})

	clock.Advance(20 * time.Millisecond)
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("Expected cascading fire [first second], got %v", order)
	}

	// A follow-up scheduled past the window waits for the next Advance
	clock.AfterFunc(10*time.Millisecond, func() {
		order = append(order, "third")
		clock.AfterFunc(time.Second, func() { order = append(order, "late") })
	})
	clock.Advance(10 * time.Millisecond)
	if len(order) != 3 || order[2] != "third" {
		t.Errorf("Expected third to fire without late, got %v", order)
	}
	clock.Advance(time.Second)
	if len(order) != 4 || order[3] != "late" {
		t.Errorf("Expected late to fire on the next advance, got %v", order)
	}
}

func TestSystemClockAfterFunc(t *testing.T) {
	done := make(chan struct{})
	SystemClock().AfterFunc(time.Millisecond, func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("Expected system clock timer to fire")
	}
}

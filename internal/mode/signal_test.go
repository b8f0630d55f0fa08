package mode

import (
	"testing"
	"time"
)

func TestSignal_SetClearIsSet(t *testing.T) {
	s := NewSignal()

	if s.IsSet() {
		t.Error("new signal should be clear")
	}

	s.Set()
	if !s.IsSet() {
		t.Error("expected signal set after Set")
	}

	// Idempotent set
	s.Set()
	if !s.IsSet() {
		t.Error("expected signal still set after second Set")
	}

	s.Clear()
	if s.IsSet() {
		t.Error("expected signal clear after Clear")
	}

	// Idempotent clear
	s.Clear()
	if s.IsSet() {
		t.Error("expected signal still clear after second Clear")
	}
}

func TestSignal_WaitTimesOut(t *testing.T) {
	s := NewSignal()

	start := time.Now()
	if s.Wait(20 * time.Millisecond) {
		t.Error("Wait on a clear signal should time out")
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("Wait returned before the timeout elapsed")
	}
}

func TestSignal_WaitObservesSet(t *testing.T) {
	s := NewSignal()

	go func() {
		time.Sleep(10 * time.Millisecond)
		s.Set()
	}()

	if !s.Wait(time.Second) {
		t.Fatal("Wait should observe the set")
	}
	// Wait does not consume the signal
	if !s.IsSet() {
		t.Error("expected signal still set after Wait")
	}
}

func TestSignal_SetAfterClearIsObservable(t *testing.T) {
	s := NewSignal()
	s.Set()
	s.Clear()
	s.Set()
	if !s.Wait(time.Second) {
		t.Error("expected Wait to observe a set following clear")
	}
}

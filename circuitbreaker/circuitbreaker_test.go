package circuitbreaker

import (
	"sync"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	cb := New(Config{
		Name:      "image-origin",
		Threshold: 3,
		Cooldown:  10 * time.Second,
	})

	if cb.Name() != "image-origin" {
		t.Errorf("Expected name 'image-origin', got %q", cb.Name())
	}
	if cb.threshold != 3 {
		t.Errorf("Expected threshold 3, got %d", cb.threshold)
	}
	if cb.cooldown != 10*time.Second {
		t.Errorf("Expected cooldown 10s, got %v", cb.cooldown)
	}
	if cb.State() != StateClosed {
		t.Errorf("Expected initial state CLOSED, got %s", cb.State())
	}
}

func TestNew_Defaults(t *testing.T) {
	cb := New(Config{})

	if cb.threshold != 5 {
		t.Errorf("Expected default threshold 5, got %d", cb.threshold)
	}
	if cb.cooldown != time.Minute {
		t.Errorf("Expected default cooldown 1m, got %v", cb.cooldown)
	}
	if cb.halfOpenTimeout != 30*time.Second {
		t.Errorf("Expected default halfOpenTimeout 30s, got %v", cb.halfOpenTimeout)
	}
	if cb.name != "default" {
		t.Errorf("Expected default name 'default', got %q", cb.name)
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := New(Config{Threshold: 3, Cooldown: time.Minute})

	cb.RecordFailure()
	cb.RecordFailure()
	if cb.State() != StateClosed {
		t.Error("Expected CLOSED after 2 failures")
	}
	if !cb.Allow() {
		t.Error("Expected Allow() to return true while CLOSED")
	}

	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Errorf("Expected OPEN after 3 failures, got %s", cb.State())
	}
	if cb.Allow() {
		t.Error("Expected Allow() to return false in OPEN state")
	}
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := New(Config{Threshold: 3, Cooldown: time.Minute})

	cb.RecordFailure()
	cb.RecordFailure()
	if cb.Failures() != 2 {
		t.Errorf("Expected 2 failures, got %d", cb.Failures())
	}

	cb.RecordSuccess()
	if cb.Failures() != 0 {
		t.Errorf("Expected 0 failures after success, got %d", cb.Failures())
	}
}

func TestCircuitBreaker_HalfOpenTrial(t *testing.T) {
	cb := New(Config{Threshold: 2, Cooldown: 50 * time.Millisecond})

	cb.RecordFailure()
	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Fatalf("Expected OPEN state, got %s", cb.State())
	}

	time.Sleep(80 * time.Millisecond)

	if !cb.Allow() {
		t.Fatal("Expected trial to be allowed after cooldown")
	}
	if cb.State() != StateHalfOpen {
		t.Errorf("Expected HALF-OPEN, got %s", cb.State())
	}
	if cb.Allow() {
		t.Error("Expected second caller to be blocked while trial is in flight")
	}

	cb.RecordSuccess()
	if cb.State() != StateClosed {
		t.Errorf("Expected CLOSED after successful trial, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenFailure(t *testing.T) {
	cb := New(Config{Threshold: 1, Cooldown: 50 * time.Millisecond})

	cb.RecordFailure()
	time.Sleep(80 * time.Millisecond)
	cb.Allow()

	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Errorf("Expected OPEN after failed trial, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenTimeout(t *testing.T) {
	cb := New(Config{Threshold: 1, Cooldown: 20 * time.Millisecond, HalfOpenTimeout: 20 * time.Millisecond})

	cb.RecordFailure()
	time.Sleep(40 * time.Millisecond)
	if !cb.Allow() {
		t.Fatal("Expected trial to be allowed")
	}

	time.Sleep(40 * time.Millisecond)
	if cb.Allow() {
		t.Error("Expected Allow() to return false after trial timeout")
	}
	if cb.State() != StateOpen {
		t.Errorf("Expected OPEN after trial timeout, got %s", cb.State())
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := New(Config{Threshold: 1, Cooldown: time.Hour})

	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Fatalf("Expected OPEN, got %s", cb.State())
	}

	cb.Reset()
	if cb.State() != StateClosed {
		t.Errorf("Expected CLOSED after reset, got %s", cb.State())
	}
	if cb.Failures() != 0 {
		t.Errorf("Expected 0 failures after reset, got %d", cb.Failures())
	}
	if cb.TimeUntilRetry() != 0 {
		t.Errorf("Expected no retry wait after reset, got %v", cb.TimeUntilRetry())
	}
}

func TestCircuitBreaker_TimeUntilRetry(t *testing.T) {
	cb := New(Config{Threshold: 1, Cooldown: time.Hour})

	if cb.TimeUntilRetry() != 0 {
		t.Error("Expected 0 while CLOSED")
	}

	cb.RecordFailure()
	remaining := cb.TimeUntilRetry()
	if remaining <= 59*time.Minute || remaining > time.Hour {
		t.Errorf("Expected remaining cooldown close to 1h, got %v", remaining)
	}
}

func TestCircuitBreaker_StateString(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateClosed, "CLOSED"},
		{StateOpen, "OPEN"},
		{StateHalfOpen, "HALF-OPEN"},
		{State(42), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.expected {
			t.Errorf("Expected %q, got %q", tt.expected, got)
		}
	}
}

func TestCircuitBreaker_ConcurrentAccess(t *testing.T) {
	cb := New(Config{Threshold: 1000, Cooldown: time.Minute})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cb.Allow()
			if i%2 == 0 {
				cb.RecordFailure()
			} else {
				cb.State()
			}
		}(i)
	}
	wg.Wait()

	if cb.Failures() != 25 {
		t.Errorf("Expected 25 failures, got %d", cb.Failures())
	}
}

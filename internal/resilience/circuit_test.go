package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func failing(_ context.Context) (string, error) { return "", errors.New("down") }
func working(_ context.Context) (string, error) { return "ok", nil }

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker("soilweb", CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})

	for range 3 {
		_, _ = ExecuteVal(context.Background(), cb, failing)
	}
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}

	calls := 0
	_, err := ExecuteVal(context.Background(), cb, func(ctx context.Context) (string, error) {
		calls++
		return working(ctx)
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if calls != 0 {
		t.Error("open circuit should not call fn")
	}
}

func TestCircuitBreaker_SuccessResetsCount(t *testing.T) {
	cb := NewCircuitBreaker("soilweb", CircuitBreakerConfig{FailureThreshold: 2})
	_, _ = ExecuteVal(context.Background(), cb, failing)
	_, _ = ExecuteVal(context.Background(), cb, working)
	_, _ = ExecuteVal(context.Background(), cb, failing)
	if cb.State() != CircuitClosed {
		t.Fatalf("expected closed, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker("soilweb", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Second})
	cb.now = func() time.Time { return now }

	_, _ = ExecuteVal(context.Background(), cb, failing)
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}

	now = now.Add(2 * time.Second)
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("expected half-open, got %s", cb.State())
	}

	v, err := ExecuteVal(context.Background(), cb, working)
	if err != nil || v != "ok" {
		t.Fatalf("probe failed: %v", err)
	}
	if cb.State() != CircuitClosed {
		t.Fatalf("expected closed after probe, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker("soilweb", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Second})
	cb.now = func() time.Time { return now }

	_, _ = ExecuteVal(context.Background(), cb, failing)
	now = now.Add(2 * time.Second)
	_, _ = ExecuteVal(context.Background(), cb, failing)

	if cb.State() != CircuitOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}
}

func TestCircuitBreaker_ShouldTrip(t *testing.T) {
	ignored := errors.New("no map unit")
	cb := NewCircuitBreaker("soilweb", CircuitBreakerConfig{
		FailureThreshold: 1,
		ShouldTrip:       func(err error) bool { return !errors.Is(err, ignored) },
	})
	_, _ = ExecuteVal(context.Background(), cb, func(context.Context) (string, error) { return "", ignored })
	if cb.State() != CircuitClosed {
		t.Fatalf("non-tripping error opened the circuit")
	}
}

func TestCircuitStateString(t *testing.T) {
	if CircuitHalfOpen.String() != "half-open" || CircuitState(9).String() != "unknown" {
		t.Error("unexpected state names")
	}
}

package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestDoVal_FirstAttempt(t *testing.T) {
	calls := 0
	v, err := DoVal(context.Background(), fastRetry(), func(_ context.Context) (string, error) {
		calls++
		return "Yolo", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "Yolo" || calls != 1 {
		t.Errorf("got %q after %d calls", v, calls)
	}
}

func TestDoVal_RetriesTransient(t *testing.T) {
	calls := 0
	retried := 0
	cfg := fastRetry()
	cfg.OnRetry = func(int, error) { retried++ }

	v, err := DoVal(context.Background(), cfg, func(_ context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, NewTransientError(errors.New("busy"), 503)
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 || calls != 3 || retried != 2 {
		t.Errorf("v=%d calls=%d retried=%d", v, calls, retried)
	}
}

func TestDoVal_ExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := DoVal(context.Background(), fastRetry(), func(_ context.Context) (int, error) {
		calls++
		return 0, NewTransientError(errors.New("still busy"), 502)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDoVal_PermanentErrorStops(t *testing.T) {
	calls := 0
	perm := errors.New("bad bbox")
	_, err := DoVal(context.Background(), fastRetry(), func(_ context.Context) (int, error) {
		calls++
		return 0, perm
	})
	if !errors.Is(err, perm) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDoVal_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := DoVal(ctx, fastRetry(), func(_ context.Context) (int, error) {
		calls++
		cancel()
		return 0, NewTransientError(errors.New("busy"), 503)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call after cancel, got %d", calls)
	}
}

func TestBackoff_Capped(t *testing.T) {
	cfg := withDefaults(RetryConfig{InitialBackoff: time.Second, MaxBackoff: 4 * time.Second, Multiplier: 2})
	if d := backoff(0, cfg); d != time.Second {
		t.Errorf("attempt 0: got %v", d)
	}
	if d := backoff(10, cfg); d != 4*time.Second {
		t.Errorf("attempt 10: got %v", d)
	}
}

func TestWithDefaults(t *testing.T) {
	cfg := withDefaults(RetryConfig{JitterFraction: -1})
	if cfg.MaxAttempts != 3 || cfg.InitialBackoff != 500*time.Millisecond || cfg.Multiplier != 2 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.JitterFraction != 0 {
		t.Errorf("negative jitter should clamp to 0, got %v", cfg.JitterFraction)
	}
}

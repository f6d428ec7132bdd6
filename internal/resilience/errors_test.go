package resilience

import (
	"errors"
	"fmt"
	"syscall"
	"testing"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit", NewTransientError(errors.New("x"), 503), true},
		{"wrapped explicit", fmt.Errorf("lookup: %w", NewTransientError(errors.New("x"), 429)), true},
		{"conn reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"conn refused", syscall.ECONNREFUSED, true},
		{"message", errors.New("dial tcp: lookup casoilresource: no such host"), true},
		{"permanent", errors.New("no map unit in response"), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsTransient(tc.err); got != tc.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("%d should be transient", code)
		}
	}
	for _, code := range []int{200, 400, 404, 501} {
		if IsTransientHTTPStatus(code) {
			t.Errorf("%d should not be transient", code)
		}
	}
}

func TestTransientErrorUnwrap(t *testing.T) {
	base := errors.New("base")
	te := NewTransientError(base, 500)
	if !errors.Is(te, base) {
		t.Error("expected unwrap to base")
	}
	if te.Error() != "base" {
		t.Errorf("unexpected message %q", te.Error())
	}
}

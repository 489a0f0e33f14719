package errors

import (
	"fmt"
	"testing"
)

func TestTestwatchError(t *testing.T) {
	// Test basic error creation
	err := New(ErrCodeNotReady, "summary is still loading")
	if err.Code != ErrCodeNotReady {
		t.Errorf("expected code %s, got %s", ErrCodeNotReady, err.Code)
	}

	// Test error wrapping
	cause := fmt.Errorf("underlying error")
	wrapped := Wrap(cause, ErrCodeRemoteRejected, "mutation rejected")

	if wrapped.Unwrap() != cause {
		t.Error("Unwrap should return the cause")
	}

	// Test Is function
	if !Is(wrapped, ErrCodeRemoteRejected) {
		t.Error("Is should return true for matching code")
	}

	if Is(wrapped, ErrCodeNotReady) {
		t.Error("Is should return false for non-matching code")
	}

	// Test Is through fmt wrapping
	if !Is(fmt.Errorf("outer: %w", wrapped), ErrCodeRemoteRejected) {
		t.Error("Is should see through fmt.Errorf wrapping")
	}

	// Test WithDetail
	detailed := err.WithDetail("source", "summary").WithDetail("attempt", 2)
	if detailed.Details["source"] != "summary" {
		t.Error("WithDetail should add details")
	}
}

func TestErrorConstructors(t *testing.T) {
	err := MalformedEvent("summary", fmt.Errorf("bad delta"))
	if err.Code != ErrCodeMalformedEvent {
		t.Errorf("expected code %s, got %s", ErrCodeMalformedEvent, err.Code)
	}
	if err.Details["source"] != "summary" {
		t.Error("MalformedEvent should include source detail")
	}

	err = StreamInterrupted("runner status", nil)
	if err.Cause != nil {
		t.Error("StreamInterrupted without cause should not wrap")
	}
	if GetCode(err) != ErrCodeStreamInterrupted {
		t.Errorf("expected code %s, got %s", ErrCodeStreamInterrupted, GetCode(err))
	}
}

func TestIsRecoverable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, true},
		{"not ready", NotReady("summary"), true},
		{"rejected", RemoteRejected("set selected file", fmt.Errorf("boom")), true},
		{"closed", Closed("summary"), false},
		{"plain error", fmt.Errorf("plain"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsRecoverable(tc.err); got != tc.want {
				t.Errorf("IsRecoverable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

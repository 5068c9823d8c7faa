package apperrors

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestErrorString(t *testing.T) {
	plain := New(KindValidation, "engine_name is required")
	if plain.Error() != "validation: engine_name is required" {
		t.Errorf("unexpected message: %q", plain.Error())
	}

	wrapped := Wrap(KindExternalService, "embedding request failed", errors.New("connection refused"))
	if wrapped.Error() != "external_service: embedding request failed: connection refused" {
		t.Errorf("unexpected message: %q", wrapped.Error())
	}
}

func TestWrapNilYieldsNil(t *testing.T) {
	if err := Wrap(KindInternal, "should vanish", nil); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
	if err := Wrapf(KindInternal, nil, "should vanish %d", 1); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{
			name: "direct classified error",
			err:  New(KindConflict, "engine exists"),
			want: KindConflict,
		},
		{
			name: "classified error behind fmt wrapping",
			err:  fmt.Errorf("submit: %w", New(KindValidation, "bad input")),
			want: KindValidation,
		},
		{
			name: "context canceled",
			err:  context.Canceled,
			want: KindCancelled,
		},
		{
			name: "context deadline",
			err:  context.DeadlineExceeded,
			want: KindTimeout,
		},
		{
			name: "wrapped context canceled",
			err:  fmt.Errorf("poll: %w", context.Canceled),
			want: KindCancelled,
		},
		{
			name: "unclassified error",
			err:  errors.New("something broke"),
			want: KindInternal,
		},
		{
			name: "nil",
			err:  nil,
			want: "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := KindOf(tc.err); got != tc.want {
				t.Errorf("expected kind %q, got %q", tc.want, got)
			}
		})
	}
}

func TestKindOfPrefersClassificationOverContextSentinels(t *testing.T) {
	// A classified error that wraps context.Canceled keeps its own kind.
	err := Wrap(KindTimeout, "index provisioning timed out", context.Canceled)
	if got := KindOf(err); got != KindTimeout {
		t.Errorf("expected timeout, got %q", got)
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(New(KindExternalService, "rate limited")) {
		t.Error("external_service should be retryable")
	}

	terminal := []Kind{
		KindValidation, KindConflict, KindSourceNotFound, KindUnsupportedFormat,
		KindQuotaExceeded, KindPermission, KindTimeout, KindCancelled,
		KindNotFound, KindInternal,
	}
	for _, kind := range terminal {
		if IsRetryable(New(kind, "x")) {
			t.Errorf("%s should not be retryable", kind)
		}
	}

	if IsRetryable(errors.New("unclassified")) {
		t.Error("unclassified errors should not be retryable")
	}
	if IsRetryable(nil) {
		t.Error("nil should not be retryable")
	}
}

func TestUnwrapSupportsErrorsIs(t *testing.T) {
	cause := errors.New("no such key")
	err := Wrap(KindSourceNotFound, "document missing", cause)

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}

	var ae *Error
	if !errors.As(err, &ae) {
		t.Fatal("expected errors.As to find *Error")
	}
	if ae.Kind != KindSourceNotFound {
		t.Errorf("expected source_not_found, got %q", ae.Kind)
	}
}

func TestMessageOf(t *testing.T) {
	if got := MessageOf(New(KindCancelled, "build cancelled by request")); got != "cancelled: build cancelled by request" {
		t.Errorf("unexpected message: %q", got)
	}
	if got := MessageOf(errors.New("raw")); got != "raw" {
		t.Errorf("unexpected message: %q", got)
	}
	if got := MessageOf(nil); got != "" {
		t.Errorf("expected empty message for nil, got %q", got)
	}
}

package services_test

import (
	"errors"
	"strings"
	"testing"

	"bookloom/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "chapters", "generate", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"chapters", "generate", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestKindAndRetryable(t *testing.T) {
	tests := []struct {
		marker    error
		kind      string
		retryable bool
	}{
		{services.ErrTransient, "transient", true},
		{services.ErrContent, "content", true},
		{services.ErrTimeout, "timeout", true},
		{services.ErrValidation, "validation", false},
		{services.ErrConfiguration, "configuration", false},
		{services.ErrExternalTool, "external", false},
	}
	for _, tt := range tests {
		err := services.Wrap(tt.marker, "outline", "generate", "x", nil)
		if got := services.Kind(err); got != tt.kind {
			t.Fatalf("Kind(%v) = %q, want %q", tt.marker, got, tt.kind)
		}
		if got := services.Retryable(err); got != tt.retryable {
			t.Fatalf("Retryable(%v) = %v, want %v", tt.marker, got, tt.retryable)
		}
		if services.Hint(err) == "" {
			t.Fatalf("expected hint for %v", tt.marker)
		}
	}
	if services.Kind(errors.New("plain")) != "unknown" {
		t.Fatal("expected unknown kind for unmarked error")
	}
}

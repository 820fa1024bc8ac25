package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		kind     Kind
		sentinel error
	}{
		{"not found", NotFound("describe", "table %q not found", "x"), KindNotFound, ErrNotFound},
		{"invalid query", InvalidQuery("parse", "unknown field %q", "y"), KindInvalidQuery, ErrInvalidQuery},
		{"index unavailable", IndexUnavailable("ensure", "no fields"), KindIndexUnavailable, ErrIndexUnavailable},
		{"internal", Internal("scan", errors.New("disk I/O error")), KindInternal, ErrInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.kind {
				t.Errorf("KindOf: expected %v, got %v", tt.kind, got)
			}
			if !errors.Is(tt.err, tt.sentinel) {
				t.Errorf("errors.Is(%v, %v) = false", tt.err, tt.sentinel)
			}
			wrapped := fmt.Errorf("handling request: %w", tt.err)
			if got := KindOf(wrapped); got != tt.kind {
				t.Errorf("KindOf(wrapped): expected %v, got %v", tt.kind, got)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	err := NotFound("describe", "table %q not found", "reports")
	if got := err.Error(); got != `describe: table "reports" not found` {
		t.Errorf("Error(): got %q", got)
	}
	if got := MessageOf(err); got != `table "reports" not found` {
		t.Errorf("MessageOf: got %q", got)
	}

	plain := errors.New("boom")
	if KindOf(plain) != KindInternal {
		t.Errorf("plain errors should be internal")
	}
	if MessageOf(plain) != "boom" {
		t.Errorf("MessageOf(plain): got %q", MessageOf(plain))
	}
}

func TestInternalKeepsKind(t *testing.T) {
	if Internal("op", nil) != nil {
		t.Fatalf("Internal(nil) should be nil")
	}
	inner := InvalidQuery("parse", "bad")
	if got := KindOf(Internal("search", inner)); got != KindInvalidQuery {
		t.Errorf("expected kind to be preserved, got %v", got)
	}
	cause := errors.New("cause")
	if !errors.Is(Internal("x", cause), cause) {
		t.Errorf("Internal should unwrap to its cause")
	}
}

package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKindAndFrom(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		kind string
	}{
		{name: "nil", err: nil, kind: ""},
		{name: "busy", err: ErrBusy, kind: "busy"},
		{name: "wrapped busy", err: fmt.Errorf("reorder: %w", ErrBusy), kind: "busy"},
		{name: "validation", err: Validation("bad %s", "input"), kind: "validation"},
		{name: "conflict", err: Conflict("moved"), kind: "conflict"},
		{name: "not found", err: NotFound("task", "t1"), kind: "not_found"},
		{name: "transport", err: &TransportError{Status: 502}, kind: "transport"},
		{name: "plain", err: context.DeadlineExceeded, kind: "transport"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Kind(tt.err); got != tt.kind {
				t.Fatalf("Kind: got %q want %q", got, tt.kind)
			}
			if got := Kind(From(tt.err)); got != tt.kind {
				t.Fatalf("Kind(From): got %q want %q", got, tt.kind)
			}
		})
	}
}

func TestFrom_KeepsTaxonomyErrors(t *testing.T) {
	v := Validation("x")
	if From(v) != v {
		t.Fatalf("taxonomy errors must pass through unchanged")
	}
	plain := errors.New("socket closed")
	got := From(plain)
	if !IsTransport(got) || !errors.Is(got, plain) {
		t.Fatalf("plain errors become transport errors wrapping the cause; got %v", got)
	}
}

func TestMessages(t *testing.T) {
	cases := map[string]error{
		"validation failed":                     &ValidationError{},
		"validation failed: name is required":   &ValidationError{Message: "name is required"},
		"conflict: state changed on the server": &ConflictError{},
		"unauthorized: sign in again":           &TransportError{Status: 401, Unauthorized: true},
		"transport: HTTP 500: boom":             &TransportError{Status: 500, Message: "boom"},
		"transport: HTTP 503":                   &TransportError{Status: 503},
		"transport: dial failed":                &TransportError{Err: errors.New("dial failed")},
		"transport failure":                     &TransportError{},
		"task not found: t1":                    NotFound("task", "t1"),
	}
	for want, err := range cases {
		if got := err.Error(); got != want {
			t.Fatalf("Error(): got %q want %q", got, want)
		}
	}
}

package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorClassification(t *testing.T) {
	transient := &TransientError{Op: "generate", StatusCode: 429, Err: errors.New("slow down")}
	precondition := NewPreconditionError("aggregate", "unit %d not terminal", 3)

	tests := []struct {
		name          string
		err           error
		wantRetryable bool
		wantMalformed bool
		wantTransient bool
	}{
		{"nil", nil, false, false, false},
		{"transient", transient, true, false, true},
		{"wrapped transient", fmt.Errorf("critique: %w", transient), true, false, true},
		{"malformed verdict", fmt.Errorf("parse: %w", ErrMalformedVerdict), true, true, false},
		{"low retention", ErrLowRetention, true, true, false},
		{"precondition", precondition, false, false, false},
		{"missing input", ErrMissingInput, false, false, false},
		{"plain error", errors.New("boom"), false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.wantRetryable {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.wantRetryable)
			}
			if got := IsMalformed(tt.err); got != tt.wantMalformed {
				t.Errorf("IsMalformed() = %v, want %v", got, tt.wantMalformed)
			}
			if got := IsTransient(tt.err); got != tt.wantTransient {
				t.Errorf("IsTransient() = %v, want %v", got, tt.wantTransient)
			}
		})
	}
}

func TestMalformedVerdictWrapsMalformed(t *testing.T) {
	if !errors.Is(ErrMalformedVerdict, ErrMalformed) {
		t.Error("ErrMalformedVerdict should match ErrMalformed")
	}
}

func TestErrorMessages(t *testing.T) {
	te := &TransientError{Op: "render", StatusCode: 503, Err: errors.New("unavailable")}
	if got, want := te.Error(), "render: transient failure (status 503): unavailable"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	pe := NewPreconditionError("refine", "no suggestions")
	if got, want := pe.Error(), "precondition violated in refine: no suggestions"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

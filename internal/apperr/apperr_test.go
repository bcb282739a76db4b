package apperr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jensholdgaard/pregao/internal/apperr"
)

func TestIs(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{"not found matches sentinel", apperr.NotFound("auction", 7), apperr.ErrNotFound, true},
		{"wrapped not found matches", fmt.Errorf("loading: %w", apperr.NotFound("bid", 1)), apperr.ErrNotFound, true},
		{"validation is not conflict", apperr.Validation("value", "too high"), apperr.ErrConflict, false},
		{"conflict matches", apperr.Conflict("participant", "role clash"), apperr.ErrConflict, true},
		{"no content matches", apperr.NoContent("bids", 3), apperr.ErrNoContent, true},
		{"plain error", errors.New("boom"), apperr.ErrNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.Is(tt.err, tt.target); got != tt.want {
				t.Errorf("errors.Is() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNotFound_Detail(t *testing.T) {
	err := apperr.NotFound("auction", 42)
	if err.ID != "42" {
		t.Errorf("ID = %q, want %q", err.ID, "42")
	}
	if err.Resource != "auction" {
		t.Errorf("Resource = %q, want %q", err.Resource, "auction")
	}
	if err.Error() != "auction 42 not found" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestKindOf(t *testing.T) {
	if got := apperr.KindOf(fmt.Errorf("x: %w", apperr.Validation("unit", "bad"))); got != apperr.KindValidation {
		t.Errorf("KindOf() = %q, want %q", got, apperr.KindValidation)
	}
	if got := apperr.KindOf(errors.New("plain")); got != "" {
		t.Errorf("KindOf(plain) = %q, want empty", got)
	}
}

func TestAsRetryable_DoesNotMutate(t *testing.T) {
	base := apperr.Conflict("bid", "lost race")
	r := base.AsRetryable()
	if !r.Retryable {
		t.Error("expected copy to be retryable")
	}
	if base.Retryable {
		t.Error("original must stay non-retryable")
	}
}

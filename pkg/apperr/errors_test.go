package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	t.Parallel()

	sentinel := NotFound("token not found")
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"plain error", errors.New("boom"), KindInternal},
		{"bad request", BadRequest("bad"), KindBadRequest},
		{"wrapped", fmt.Errorf("lookup: %w", sentinel), KindNotFound},
		{"internal", Internal("db", errors.New("conn reset")), KindInternal},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestMessageOfHidesInternalDetail(t *testing.T) {
	t.Parallel()

	err := Internal("query users", errors.New("password authentication failed for user postgres"))
	assert.Equal(t, "internal server error", MessageOf(err))
	assert.Equal(t, "internal server error", MessageOf(errors.New("raw")))
	assert.Equal(t, "role not found", MessageOf(fmt.Errorf("x: %w", NotFound("role not found"))))
}

func TestSentinelIdentitySurvivesWrapping(t *testing.T) {
	t.Parallel()

	sentinel := Conflict("already processed")
	wrapped := fmt.Errorf("resend: %w", sentinel)
	assert.True(t, errors.Is(wrapped, sentinel))
	assert.False(t, errors.Is(wrapped, Conflict("already processed")))
}

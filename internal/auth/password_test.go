package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamspace/backend/pkg/apperr"
)

func TestHashAndCheckPassword(t *testing.T) {
	t.Parallel()
	hash, err := HashPassword("correct-horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct-horse", hash)
	assert.True(t, CheckPassword("correct-horse", &hash))
	assert.False(t, CheckPassword("wrong-horse", &hash))
	assert.False(t, CheckPassword("correct-horse", nil))
	empty := ""
	assert.False(t, CheckPassword("correct-horse", &empty))
}

func TestValidatePassword(t *testing.T) {
	t.Parallel()
	assert.Error(t, ValidatePassword("short"))
	assert.NoError(t, ValidatePassword("12345678"))
	assert.NoError(t, ValidatePassword(strings.Repeat("a", 72)))
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(ValidatePassword(strings.Repeat("a", 73))))
}

func TestNormalizeEmail(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "  Ann@Example.COM ", want: "ann@example.com"},
		{in: "a@b", want: "a@b"},
		{in: "no-at-sign", wantErr: true},
		{in: "@example.com", wantErr: true},
		{in: "ann@", wantErr: true},
		{in: "an n@example.com", wantErr: true},
	}
	for _, tt := range tests {
		got, err := NormalizeEmail(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestOAuthProfileNormalize(t *testing.T) {
	t.Parallel()
	p, err := OAuthProfile{Provider: "google", ProviderID: "1", Email: "Ann@Example.com", DisplayName: "Ann Marie Lee"}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", p.Email)
	assert.Equal(t, "Ann", p.FirstName)
	assert.Equal(t, "Marie Lee", p.LastName)

	p, err = OAuthProfile{Provider: "google", ProviderID: "1", Email: "bob@example.com"}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, "bob", p.FirstName)

	_, err = OAuthProfile{Provider: "google", Email: "bob@example.com"}.Normalize()
	assert.Error(t, err)
}

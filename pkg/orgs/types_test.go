package orgs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveSlug(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "simple name",
			input:    "Acme",
			expected: "acme",
		},
		{
			name:     "name with spaces",
			input:    "Acme Rockets Inc",
			expected: "acme-rockets-inc",
		},
		{
			name:     "name with special chars",
			input:    "Acme@Rockets!",
			expected: "acmerockets",
		},
		{
			name:     "surrounding whitespace",
			input:    "  Acme  ",
			expected: "acme",
		},
		{
			name:     "only special chars",
			input:    "@@!!",
			expected: "",
		},
		{
			name:     "mixed case with digits",
			input:    "Team 42",
			expected: "team-42",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DeriveSlug(tt.input))
		})
	}
}

func TestGenerateToken(t *testing.T) {
	token1, err := generateToken()
	require.NoError(t, err)
	assert.Equal(t, 64, len(token1)) // 32 bytes = 64 hex chars

	token2, err := generateToken()
	require.NoError(t, err)
	assert.NotEqual(t, token1, token2)
}

func TestRoleValid(t *testing.T) {
	assert.True(t, RoleAdmin.Valid())
	assert.True(t, RoleUser.Valid())
	assert.False(t, Role("owner").Valid())
	assert.False(t, Role("").Valid())
}

func TestValidationError(t *testing.T) {
	err := &ValidationError{Field: "email", Reason: "must be a valid email address"}
	assert.True(t, IsValidation(err))
	assert.Contains(t, err.Error(), "email")
	assert.False(t, IsValidation(ErrConflict))
}

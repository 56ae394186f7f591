package mailer

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finchly/tenancy/pkg/observability"
	"github.com/finchly/tenancy/pkg/orgs"
)

func TestNewSMTPMailer(t *testing.T) {
	t.Run("trailing slash is trimmed from the base URL", func(t *testing.T) {
		m := NewSMTPMailer("smtp.example.com:587", "no-reply@example.com", "https://app.example.com/", "", "")
		assert.Equal(t, "https://app.example.com", m.baseURL)
		assert.Nil(t, m.auth)
	})

	t.Run("credentials enable plain auth", func(t *testing.T) {
		m := NewSMTPMailer("smtp.example.com:587", "no-reply@example.com", "https://app.example.com", "user", "pass")
		assert.NotNil(t, m.auth)
	})
}

func TestLogMailer(t *testing.T) {
	var buf bytes.Buffer
	m := NewLogMailer(observability.NewLogger(observability.InfoLevel, &buf))

	inv := &orgs.Invitation{
		Email:     "new@example.com",
		Role:      orgs.RoleUser,
		Token:     "sometoken",
		ExpiresAt: time.Now().Add(7 * 24 * time.Hour),
	}
	require.NoError(t, m.SendInvitation(context.Background(), inv, "Acme", "Jamie Reed"))

	out := buf.String()
	assert.Contains(t, out, "new@example.com")
	assert.Contains(t, out, "Acme")
	// The accept token never reaches the log stream.
	assert.NotContains(t, out, "sometoken")
}

package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/finchly/tenancy/pkg/observability"
	"github.com/finchly/tenancy/pkg/orgs"
)

// SMTPMailer sends invitation email over plain SMTP.
type SMTPMailer struct {
	addr    string // host:port
	from    string
	baseURL string // public base URL for accept links
	auth    smtp.Auth
}

// NewSMTPMailer creates an SMTPMailer. username may be empty for
// unauthenticated relays.
func NewSMTPMailer(addr, from, baseURL, username, password string) *SMTPMailer {
	m := &SMTPMailer{addr: addr, from: from, baseURL: strings.TrimRight(baseURL, "/")}
	if username != "" {
		host := addr
		if i := strings.IndexByte(addr, ':'); i >= 0 {
			host = addr[:i]
		}
		m.auth = smtp.PlainAuth("", username, password, host)
	}
	return m
}

// SendInvitation emails the invitation accept link to the invitee.
func (m *SMTPMailer) SendInvitation(ctx context.Context, inv *orgs.Invitation, orgName, inviterName string) error {
	link := fmt.Sprintf("%s/invitations/accept?token=%s", m.baseURL, inv.Token)
	subject := fmt.Sprintf("You've been invited to join %s", orgName)
	inviter := inviterName
	if inviter == "" {
		inviter = "An administrator"
	}
	body := fmt.Sprintf(
		"%s invited you to join %s as %s.\r\n\r\n"+
			"Accept the invitation: %s\r\n\r\n"+
			"This invitation expires on %s.\r\n",
		inviter, orgName, inv.Role, link, inv.ExpiresAt.Format("Jan 2, 2006"),
	)

	msg := strings.Join([]string{
		"From: " + m.from,
		"To: " + inv.Email,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	}, "\r\n")

	if err := smtp.SendMail(m.addr, m.auth, m.from, []string{inv.Email}, []byte(msg)); err != nil {
		return fmt.Errorf("failed to send invitation email: %w", err)
	}
	return nil
}

// LogMailer logs invitation email instead of sending it. Used in
// development when no SMTP relay is configured.
type LogMailer struct {
	logger *observability.Logger
}

// NewLogMailer creates a LogMailer.
func NewLogMailer(logger *observability.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// SendInvitation logs the invitation instead of dispatching it.
func (m *LogMailer) SendInvitation(ctx context.Context, inv *orgs.Invitation, orgName, inviterName string) error {
	m.logger.WithFields(map[string]interface{}{
		"email":        inv.Email,
		"organization": orgName,
		"role":         inv.Role,
		"expires_at":   inv.ExpiresAt,
	}).Info("invitation email (not sent: no SMTP configured)")
	return nil
}

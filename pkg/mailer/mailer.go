// Package mailer is the transactional-email collaborator. The service only
// needs one message type: the invitation email carrying the accept link.
package mailer

import (
	"context"

	"github.com/finchly/tenancy/pkg/orgs"
)

// Mailer dispatches transactional email.
type Mailer interface {
	// SendInvitation emails an invitation accept link to the invitee.
	SendInvitation(ctx context.Context, inv *orgs.Invitation, orgName, inviterName string) error
}

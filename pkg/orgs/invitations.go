package orgs

import (
	"context"
	"database/sql"
	"fmt"
)

// createInvitation inserts a pending invitation with a fresh opaque token.
// Fails with ErrConflict when a pending invitation for the same email and
// organization already exists (enforced by a partial unique index).
func (s *PostgresService) createInvitation(ctx context.Context, orgID int64, email string, role Role, invitedBy int64) (*Invitation, error) {
	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	inv := &Invitation{
		OrganizationID: orgID,
		Email:          email,
		Role:           role,
		InvitedBy:      invitedBy,
		Token:          token,
		Status:         InvitationPending,
		ExpiresAt:      s.now().Add(s.invitationTTL),
	}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO invitations (organization_id, email, role, invited_by, token, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, inv.OrganizationID, inv.Email, inv.Role, inv.InvitedBy, inv.Token, inv.Status, inv.ExpiresAt).
		Scan(&inv.ID, &inv.CreatedAt)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("a pending invitation for %s already exists: %w", email, ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create invitation: %w", err)
	}
	return inv, nil
}

// LookupInvitation returns the public preview for a token. A pending
// invitation past its expiry is flipped to expired on the way out and
// reported with ErrExpired rather than served as pending. Terminal
// invitations fail with ErrConflict.
func (s *PostgresService) LookupInvitation(ctx context.Context, token string) (*InvitationPreview, error) {
	preview := &InvitationPreview{}
	var status InvitationStatus
	err := s.db.QueryRowContext(ctx, `
		SELECT i.id, o.name, COALESCE(u.name, ''), i.email, i.role, i.status, i.expires_at
		FROM invitations i
		JOIN organizations o ON o.id = i.organization_id
		JOIN users u ON u.id = i.invited_by
		WHERE i.token = $1
	`, token).Scan(
		&preview.ID, &preview.OrganizationName, &preview.InviterName,
		&preview.Email, &preview.Role, &status, &preview.ExpiresAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("invitation: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	preview.Status = status

	if status == InvitationPending && s.now().After(preview.ExpiresAt) {
		if err := s.expireInvitation(ctx, preview.ID); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("invitation has expired: %w", ErrExpired)
	}
	if status != InvitationPending {
		return nil, fmt.Errorf("invitation is %s: %w", status, ErrConflict)
	}
	return preview, nil
}

// AcceptInvitation accepts an invitation on behalf of an authenticated
// user. The user's email must match the invitation exactly; on success the
// membership insert and the pending→accepted flip commit atomically.
// Concurrent accepts on the same token serialize on the invitation row
// lock, so only one produces a membership.
func (s *PostgresService) AcceptInvitation(ctx context.Context, token string, userID int64, email string) (*Member, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var inv Invitation
	err = tx.QueryRowContext(ctx, `
		SELECT id, organization_id, email, role, status, expires_at
		FROM invitations
		WHERE token = $1
		FOR UPDATE
	`, token).Scan(&inv.ID, &inv.OrganizationID, &inv.Email, &inv.Role, &inv.Status, &inv.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("invitation: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}

	if inv.Status != InvitationPending {
		// Terminal state: the accept window is gone, not contested.
		return nil, fmt.Errorf("invitation is %s: %w", inv.Status, ErrInvariant)
	}
	if s.now().After(inv.ExpiresAt) {
		// Flip to expired in the same transaction so the failed accept
		// still records the terminal state.
		_, err = tx.ExecContext(ctx, `
			UPDATE invitations SET status = $1 WHERE id = $2 AND status = $3
		`, InvitationExpired, inv.ID, InvitationPending)
		if err != nil {
			return nil, fmt.Errorf("failed to expire invitation: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit: %w", err)
		}
		return nil, fmt.Errorf("invitation has expired: %w", ErrExpired)
	}
	if inv.Email != email {
		return nil, fmt.Errorf("this invitation is addressed to %s; sign in with that account: %w", inv.Email, ErrForbidden)
	}

	member := &Member{OrganizationID: inv.OrganizationID, UserID: userID, Role: inv.Role}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO memberships (organization_id, user_id, role)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, inv.OrganizationID, userID, inv.Role).Scan(&member.ID, &member.CreatedAt)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("user is already a member: %w", ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to add member: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE invitations SET status = $1, accepted_at = $2
		WHERE id = $3 AND status = $4
	`, InvitationAccepted, s.now(), inv.ID, InvitationPending)
	if err != nil {
		return nil, fmt.Errorf("failed to update invitation: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("invitation is no longer pending: %w", ErrConflict)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return member, nil
}

// CancelInvitation cancels a pending invitation by marking it expired.
// Only pending invitations can be cancelled; cancelling twice fails with
// ErrConflict and leaves the stored state unchanged.
func (s *PostgresService) CancelInvitation(ctx context.Context, orgID, invitationID int64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE invitations SET status = $1
		WHERE id = $2 AND organization_id = $3 AND status = $4
	`, InvitationExpired, invitationID, orgID, InvitationPending)
	if err != nil {
		return fmt.Errorf("failed to cancel invitation: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		var exists bool
		err := s.db.QueryRowContext(ctx, `
			SELECT EXISTS (SELECT 1 FROM invitations WHERE id = $1 AND organization_id = $2)
		`, invitationID, orgID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check invitation: %w", err)
		}
		if !exists {
			return fmt.Errorf("invitation: %w", ErrNotFound)
		}
		return fmt.Errorf("can only cancel pending invitations: %w", ErrConflict)
	}
	return nil
}

// ListOrgInvitations lists an organization's pending, unexpired invitations,
// newest first.
func (s *PostgresService) ListOrgInvitations(ctx context.Context, orgID int64) ([]*Invitation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organization_id, email, role, invited_by, status, expires_at, created_at
		FROM invitations
		WHERE organization_id = $1 AND status = $2 AND expires_at > $3
		ORDER BY created_at DESC
	`, orgID, InvitationPending, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	var invitations []*Invitation
	for rows.Next() {
		inv := &Invitation{}
		if err := rows.Scan(
			&inv.ID, &inv.OrganizationID, &inv.Email, &inv.Role,
			&inv.InvitedBy, &inv.Status, &inv.ExpiresAt, &inv.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		invitations = append(invitations, inv)
	}
	return invitations, rows.Err()
}

// ListUserInvitations lists the pending, unexpired invitations addressed
// to an email, with organization and inviter display names and no token.
func (s *PostgresService) ListUserInvitations(ctx context.Context, email string) ([]*InvitationPreview, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, o.name, COALESCE(u.name, ''), i.email, i.role, i.status, i.expires_at
		FROM invitations i
		JOIN organizations o ON o.id = i.organization_id
		JOIN users u ON u.id = i.invited_by
		WHERE i.email = $1 AND i.status = $2 AND i.expires_at > $3
		ORDER BY i.created_at DESC
	`, email, InvitationPending, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	var previews []*InvitationPreview
	for rows.Next() {
		p := &InvitationPreview{}
		if err := rows.Scan(
			&p.ID, &p.OrganizationName, &p.InviterName,
			&p.Email, &p.Role, &p.Status, &p.ExpiresAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		previews = append(previews, p)
	}
	return previews, rows.Err()
}

// CleanupExpiredInvitations flips every pending invitation past its expiry
// to expired and returns how many were affected. Run periodically; lookups
// and accepts also expire lazily, so this is hygiene, not correctness.
func (s *PostgresService) CleanupExpiredInvitations(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE invitations SET status = $1
		WHERE status = $2 AND expires_at < $3
	`, InvitationExpired, InvitationPending, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired invitations: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected, nil
}

// expireInvitation conditionally flips a single pending invitation to expired.
func (s *PostgresService) expireInvitation(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE invitations SET status = $1 WHERE id = $2 AND status = $3
	`, InvitationExpired, id, InvitationPending)
	if err != nil {
		return fmt.Errorf("failed to expire invitation: %w", err)
	}
	return nil
}

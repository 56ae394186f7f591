package orgs

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// ListMembers retrieves all members of an organization with user display
// details, oldest membership first.
func (s *PostgresService) ListMembers(ctx context.Context, orgID int64) ([]*Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.organization_id, m.user_id, m.role, m.created_at,
		       COALESCE(u.name, ''), u.email
		FROM memberships m
		JOIN users u ON u.id = m.user_id
		WHERE m.organization_id = $1
		ORDER BY m.created_at ASC, m.id ASC
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*Member
	for rows.Next() {
		member := &Member{}
		if err := rows.Scan(
			&member.ID, &member.OrganizationID, &member.UserID, &member.Role,
			&member.CreatedAt, &member.Name, &member.Email,
		); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, member)
	}
	return members, rows.Err()
}

// GetMember retrieves a specific member
func (s *PostgresService) GetMember(ctx context.Context, orgID, userID int64) (*Member, error) {
	member := &Member{}
	err := s.db.QueryRowContext(ctx, `
		SELECT m.id, m.organization_id, m.user_id, m.role, m.created_at,
		       COALESCE(u.name, ''), u.email
		FROM memberships m
		JOIN users u ON u.id = m.user_id
		WHERE m.organization_id = $1 AND m.user_id = $2
	`, orgID, userID).Scan(
		&member.ID, &member.OrganizationID, &member.UserID, &member.Role,
		&member.CreatedAt, &member.Name, &member.Email,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("member: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return member, nil
}

// InviteMember invites an email address to an organization. An existing
// user is added as a member immediately; an unknown email gets a pending
// invitation instead (the caller dispatches the email). Fails with
// ErrConflict when the email already belongs to a member or already has a
// pending invitation to this organization.
func (s *PostgresService) InviteMember(ctx context.Context, orgID int64, email string, role Role, invitedBy int64) (*InviteResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, &ValidationError{Field: "email", Reason: "must be a valid email address"}
	}
	if !role.Valid() {
		return nil, &ValidationError{Field: "role", Reason: "must be admin or user"}
	}

	var userID int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM users WHERE email = $1`, email).Scan(&userID)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if err == nil {
		// Existing account: add directly, no invitation flow.
		member, err := s.addMember(ctx, orgID, userID, role)
		if err != nil {
			return nil, err
		}
		// A pending invitation for this email is moot now that the user
		// is a member; retire it so the token cannot be accepted later.
		_, err = s.db.ExecContext(ctx, `
			UPDATE invitations SET status = $1
			WHERE organization_id = $2 AND email = $3 AND status = $4
		`, InvitationExpired, orgID, email, InvitationPending)
		if err != nil {
			return nil, fmt.Errorf("failed to retire pending invitation: %w", err)
		}
		return &InviteResult{Member: member}, nil
	}

	inv, err := s.createInvitation(ctx, orgID, email, role, invitedBy)
	if err != nil {
		return nil, err
	}
	return &InviteResult{Invitation: inv}, nil
}

// addMember inserts a membership row, failing with ErrConflict when one
// already exists.
func (s *PostgresService) addMember(ctx context.Context, orgID, userID int64, role Role) (*Member, error) {
	member := &Member{OrganizationID: orgID, UserID: userID, Role: role}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO memberships (organization_id, user_id, role)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, orgID, userID, role).Scan(&member.ID, &member.CreatedAt)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("user is already a member: %w", ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to add member: %w", err)
	}
	return member, nil
}

// UpdateMemberRole changes a member's role. Demoting the organization's
// last remaining admin is rejected; the admin count is re-read inside the
// same transaction as the update, so concurrent demotions cannot slip
// past the check.
func (s *PostgresService) UpdateMemberRole(ctx context.Context, orgID, userID int64, role Role) error {
	if !role.Valid() {
		return &ValidationError{Field: "role", Reason: "must be admin or user"}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := s.lockMemberRole(ctx, tx, orgID, userID)
	if err != nil {
		return err
	}
	if current == role {
		return tx.Commit()
	}

	if current == RoleAdmin && role != RoleAdmin {
		admins, err := s.countAdmins(ctx, tx, orgID)
		if err != nil {
			return err
		}
		if admins <= 1 {
			return fmt.Errorf("cannot remove the last admin: %w", ErrInvariant)
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE memberships SET role = $1
		WHERE organization_id = $2 AND user_id = $3
	`, role, orgID, userID)
	if err != nil {
		return fmt.Errorf("failed to update member role: %w", err)
	}
	return tx.Commit()
}

// RemoveMember deletes a membership. Removing the organization's last
// admin is rejected, including via self-leave.
func (s *PostgresService) RemoveMember(ctx context.Context, orgID, userID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	role, err := s.lockMemberRole(ctx, tx, orgID, userID)
	if err != nil {
		return err
	}

	if role == RoleAdmin {
		admins, err := s.countAdmins(ctx, tx, orgID)
		if err != nil {
			return err
		}
		if admins <= 1 {
			return fmt.Errorf("cannot remove the last admin: %w", ErrInvariant)
		}
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM memberships
		WHERE organization_id = $1 AND user_id = $2
	`, orgID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	return tx.Commit()
}

// lockMemberRole reads a member's role under a row lock so role changes
// and removals serialize against each other.
func (s *PostgresService) lockMemberRole(ctx context.Context, tx *sql.Tx, orgID, userID int64) (Role, error) {
	var role Role
	err := tx.QueryRowContext(ctx, `
		SELECT role FROM memberships
		WHERE organization_id = $1 AND user_id = $2
		FOR UPDATE
	`, orgID, userID).Scan(&role)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("member: %w", ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get member: %w", err)
	}
	return role, nil
}

// countAdmins counts admin memberships inside the caller's transaction.
func (s *PostgresService) countAdmins(ctx context.Context, tx *sql.Tx, orgID int64) (int, error) {
	var admins int
	err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM memberships
		WHERE organization_id = $1 AND role = $2
	`, orgID, RoleAdmin).Scan(&admins)
	if err != nil {
		return 0, fmt.Errorf("failed to count admins: %w", err)
	}
	return admins, nil
}

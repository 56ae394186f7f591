package orgs

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// PostgresService implements the Service interface using PostgreSQL
type PostgresService struct {
	db            *sql.DB
	invitationTTL time.Duration
	now           func() time.Time
}

// Option configures a PostgresService
type Option func(*PostgresService)

// WithInvitationTTL overrides the default invitation expiration window
func WithInvitationTTL(ttl time.Duration) Option {
	return func(s *PostgresService) { s.invitationTTL = ttl }
}

// WithClock overrides the service's time source. Tests use this to
// simulate expiry without sleeping.
func WithClock(now func() time.Time) Option {
	return func(s *PostgresService) { s.now = now }
}

// NewPostgresService creates a new PostgresService
func NewPostgresService(db *sql.DB, opts ...Option) *PostgresService {
	s := &PostgresService{
		db:            db,
		invitationTTL: DefaultInvitationTTL,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrganization creates a new organization with the creator as its
// sole admin. The slug is derived from the name when not supplied; a slug
// collision fails with ErrConflict, no auto-suffixing.
func (s *PostgresService) CreateOrganization(ctx context.Context, creatorID int64, req *CreateOrgRequest) (*Organization, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, &ValidationError{Field: "name", Reason: "must not be empty"}
	}

	slug := req.Slug
	if slug == "" {
		slug = DeriveSlug(req.Name)
	}
	if slug == "" {
		return nil, &ValidationError{Field: "slug", Reason: "cannot derive a slug from the name"}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	org := &Organization{Name: req.Name, Slug: slug, Logo: req.Logo}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO organizations (name, slug, logo)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, org.Name, org.Slug, org.Logo).Scan(&org.ID, &org.CreatedAt)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("slug %q is already taken: %w", slug, ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create organization: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO memberships (organization_id, user_id, role)
		VALUES ($1, $2, $3)
	`, org.ID, creatorID, RoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("failed to create admin membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return org, nil
}

// GetOrganization retrieves an organization by ID
func (s *PostgresService) GetOrganization(ctx context.Context, id int64) (*Organization, error) {
	org := &Organization{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, slug, logo, created_at
		FROM organizations
		WHERE id = $1
	`, id).Scan(&org.ID, &org.Name, &org.Slug, &org.Logo, &org.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("organization %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return org, nil
}

// ListOrganizations lists the organizations the user belongs to, with the
// user's role in each, most recently joined first.
func (s *PostgresService) ListOrganizations(ctx context.Context, userID int64) ([]*OrgWithRole, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT o.id, o.name, o.slug, o.logo, o.created_at, m.role
		FROM organizations o
		JOIN memberships m ON o.id = m.organization_id
		WHERE m.user_id = $1
		ORDER BY m.created_at DESC, m.id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	var orgs []*OrgWithRole
	for rows.Next() {
		o := &OrgWithRole{}
		if err := rows.Scan(&o.ID, &o.Name, &o.Slug, &o.Logo, &o.CreatedAt, &o.Role); err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		orgs = append(orgs, o)
	}
	return orgs, rows.Err()
}

// UpdateOrganization applies a partial update. Slug uniqueness is
// re-checked when the slug changes.
func (s *PostgresService) UpdateOrganization(ctx context.Context, id int64, updates *UpdateOrgRequest) (*Organization, error) {
	setClauses := []string{}
	args := []interface{}{}
	argPos := 1

	if updates.Name != nil {
		if strings.TrimSpace(*updates.Name) == "" {
			return nil, &ValidationError{Field: "name", Reason: "must not be empty"}
		}
		setClauses = append(setClauses, fmt.Sprintf("name = $%d", argPos))
		args = append(args, *updates.Name)
		argPos++
	}
	if updates.Slug != nil {
		if DeriveSlug(*updates.Slug) != *updates.Slug || *updates.Slug == "" {
			return nil, &ValidationError{Field: "slug", Reason: "must contain only lowercase letters, digits, and hyphens"}
		}
		setClauses = append(setClauses, fmt.Sprintf("slug = $%d", argPos))
		args = append(args, *updates.Slug)
		argPos++
	}
	if updates.Logo != nil {
		setClauses = append(setClauses, fmt.Sprintf("logo = $%d", argPos))
		args = append(args, *updates.Logo)
		argPos++
	}

	if len(setClauses) > 0 {
		args = append(args, id)
		query := fmt.Sprintf("UPDATE organizations SET %s WHERE id = $%d", strings.Join(setClauses, ", "), argPos)
		result, err := s.db.ExecContext(ctx, query, args...)
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("slug %q is already taken: %w", *updates.Slug, ErrConflict)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to update organization: %w", err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return nil, fmt.Errorf("organization %d: %w", id, ErrNotFound)
		}
	}

	return s.GetOrganization(ctx, id)
}

// DeleteOrganization deletes an organization and cascades to its
// memberships and invitations. Rejected when it is the requester's only
// organization, so a user can never end up with zero organizations.
func (s *PostgresService) DeleteOrganization(ctx context.Context, id, requesterID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var otherOrgs int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM memberships
		WHERE user_id = $1 AND organization_id <> $2
	`, requesterID, id).Scan(&otherOrgs)
	if err != nil {
		return fmt.Errorf("failed to count memberships: %w", err)
	}
	if otherOrgs == 0 {
		return fmt.Errorf("cannot delete your only organization: %w", ErrInvariant)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM organizations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete organization: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("organization %d: %w", id, ErrNotFound)
	}

	return tx.Commit()
}

// ResolveActiveOrganization determines the organization context for a
// request: the persisted preference when still valid, otherwise the most
// recently created membership, otherwise a freshly provisioned default
// organization with the user as sole admin.
func (s *PostgresService) ResolveActiveOrganization(ctx context.Context, userID, preferredOrgID int64) (*Resolution, error) {
	if preferredOrgID != 0 {
		res, err := s.resolveMembership(ctx, `
			SELECT o.id, o.name, o.slug, o.logo, o.created_at, m.role
			FROM organizations o
			JOIN memberships m ON o.id = m.organization_id
			WHERE m.user_id = $1 AND m.organization_id = $2
		`, userID, preferredOrgID)
		if err != nil {
			return nil, err
		}
		if res != nil {
			return res, nil
		}
		// Stale preference: the membership is gone, fall through.
	}

	res, err := s.resolveMembership(ctx, `
		SELECT o.id, o.name, o.slug, o.logo, o.created_at, m.role
		FROM organizations o
		JOIN memberships m ON o.id = m.organization_id
		WHERE m.user_id = $1
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT 1
	`, userID)
	if err != nil {
		return nil, err
	}
	if res != nil {
		return res, nil
	}

	return s.provisionDefaultOrganization(ctx, userID)
}

// resolveMembership runs a membership query and returns nil (no error)
// when no row matches.
func (s *PostgresService) resolveMembership(ctx context.Context, query string, args ...interface{}) (*Resolution, error) {
	org := &Organization{}
	var role Role
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&org.ID, &org.Name, &org.Slug, &org.Logo, &org.CreatedAt, &role,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve membership: %w", err)
	}
	return &Resolution{Org: org, Role: role}, nil
}

// provisionDefaultOrganization creates a default organization for a user
// with no memberships. The whole operation is one transaction keyed on a
// row lock of the user, so two concurrent resolutions cannot provision
// twice: the second waits, re-reads, and adopts the first's membership.
func (s *PostgresService) provisionDefaultOrganization(ctx context.Context, userID int64) (*Resolution, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("provisioning failed: %w", err)
	}
	defer tx.Rollback()

	var name, email string
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(name, ''), email FROM users WHERE id = $1 FOR UPDATE
	`, userID).Scan(&name, &email)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("provisioning failed: %w", err)
	}

	// Re-check under the lock: a concurrent resolution may have already
	// provisioned for this user.
	org := &Organization{}
	var role Role
	err = tx.QueryRowContext(ctx, `
		SELECT o.id, o.name, o.slug, o.logo, o.created_at, m.role
		FROM organizations o
		JOIN memberships m ON o.id = m.organization_id
		WHERE m.user_id = $1
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT 1
	`, userID).Scan(&org.ID, &org.Name, &org.Slug, &org.Logo, &org.CreatedAt, &role)
	if err == nil {
		if commitErr := tx.Commit(); commitErr != nil {
			return nil, fmt.Errorf("provisioning failed: %w", commitErr)
		}
		return &Resolution{Org: org, Role: role}, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("provisioning failed: %w", err)
	}

	orgName := name
	if orgName == "" {
		orgName = strings.SplitN(email, "@", 2)[0]
	}
	slug := DeriveSlug(orgName)
	if slug == "" {
		slug = "org"
	}

	// Auto-provisioning must not fail on a name clash, so the slug gets a
	// random suffix when taken (unlike explicit creation). Checked before
	// the insert: a failed insert would abort the whole transaction.
	candidate := slug
	for attempt := 0; attempt < 5; attempt++ {
		var taken bool
		err = tx.QueryRowContext(ctx, `
			SELECT EXISTS (SELECT 1 FROM organizations WHERE slug = $1)
		`, candidate).Scan(&taken)
		if err != nil {
			return nil, fmt.Errorf("provisioning failed: %w", err)
		}
		if !taken {
			break
		}
		candidate = slug + "-" + randomSuffix()
	}

	org = &Organization{Name: orgName, Slug: candidate}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO organizations (name, slug, logo)
		VALUES ($1, $2, '')
		RETURNING id, created_at
	`, orgName, candidate).Scan(&org.ID, &org.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("provisioning failed: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO memberships (organization_id, user_id, role)
		VALUES ($1, $2, $3)
	`, org.ID, userID, RoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("provisioning failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("provisioning failed: %w", err)
	}
	return &Resolution{Org: org, Role: RoleAdmin, Provisioned: true}, nil
}

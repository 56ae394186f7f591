package orgs

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"
)

// Role represents organization-level roles
type Role string

const (
	RoleAdmin Role = "admin" // Full control over the organization
	RoleUser  Role = "user"  // Regular member
)

// Valid reports whether the role is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// InvitationStatus represents the state of an invitation
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationExpired  InvitationStatus = "expired"
)

// DefaultInvitationTTL is how long a new invitation stays accept-able.
const DefaultInvitationTTL = 7 * 24 * time.Hour

// Organization represents a tenant
type Organization struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Logo      string    `json:"logo,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// OrgWithRole pairs an organization with the caller's role in it
type OrgWithRole struct {
	Organization
	Role Role `json:"role"`
}

// Member represents an organization membership with user display details
type Member struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	UserID         int64     `json:"user_id"`
	Role           Role      `json:"role"`
	CreatedAt      time.Time `json:"created_at"`
	Name           string    `json:"name,omitempty"`
	Email          string    `json:"email,omitempty"`
}

// Invitation represents an offer for an email address to join an organization
type Invitation struct {
	ID             int64            `json:"id"`
	OrganizationID int64            `json:"organization_id"`
	Email          string           `json:"email"`
	Role           Role             `json:"role"`
	InvitedBy      int64            `json:"invited_by"`
	Token          string           `json:"-"` // Never expose the token in listings
	Status         InvitationStatus `json:"status"`
	ExpiresAt      time.Time        `json:"expires_at"`
	CreatedAt      time.Time        `json:"created_at"`
	AcceptedAt     *time.Time       `json:"accepted_at,omitempty"`
}

// InvitationPreview is the public, token-less view of a pending invitation
type InvitationPreview struct {
	ID               int64            `json:"id"`
	OrganizationName string           `json:"organization_name"`
	InviterName      string           `json:"inviter_name,omitempty"`
	Email            string           `json:"email"`
	Role             Role             `json:"role"`
	Status           InvitationStatus `json:"status"`
	ExpiresAt        time.Time        `json:"expires_at"`
}

// Resolution is the outcome of resolving a user's active organization
type Resolution struct {
	Org         *Organization
	Role        Role
	Provisioned bool // true when a default organization was auto-created
}

// InviteResult is the outcome of inviting an email to an organization.
// Exactly one of Member or Invitation is set: existing users are added
// directly, unknown emails get a pending invitation.
type InviteResult struct {
	Member     *Member     `json:"member,omitempty"`
	Invitation *Invitation `json:"invitation,omitempty"`
}

// CreateOrgRequest represents request to create an organization
type CreateOrgRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug,omitempty"`
	Logo string `json:"logo,omitempty"`
}

// UpdateOrgRequest represents a partial organization update
type UpdateOrgRequest struct {
	Name *string `json:"name,omitempty"`
	Slug *string `json:"slug,omitempty"`
	Logo *string `json:"logo,omitempty"`
}

// Service defines the interface for organization management
type Service interface {
	// Organization CRUD
	CreateOrganization(ctx context.Context, creatorID int64, req *CreateOrgRequest) (*Organization, error)
	GetOrganization(ctx context.Context, id int64) (*Organization, error)
	ListOrganizations(ctx context.Context, userID int64) ([]*OrgWithRole, error)
	UpdateOrganization(ctx context.Context, id int64, updates *UpdateOrgRequest) (*Organization, error)
	DeleteOrganization(ctx context.Context, id, requesterID int64) error

	// Active organization resolution
	ResolveActiveOrganization(ctx context.Context, userID, preferredOrgID int64) (*Resolution, error)

	// Member management
	ListMembers(ctx context.Context, orgID int64) ([]*Member, error)
	GetMember(ctx context.Context, orgID, userID int64) (*Member, error)
	InviteMember(ctx context.Context, orgID int64, email string, role Role, invitedBy int64) (*InviteResult, error)
	UpdateMemberRole(ctx context.Context, orgID, userID int64, role Role) error
	RemoveMember(ctx context.Context, orgID, userID int64) error

	// Invitation management
	LookupInvitation(ctx context.Context, token string) (*InvitationPreview, error)
	AcceptInvitation(ctx context.Context, token string, userID int64, email string) (*Member, error)
	CancelInvitation(ctx context.Context, orgID, invitationID int64) error
	ListOrgInvitations(ctx context.Context, orgID int64) ([]*Invitation, error)
	ListUserInvitations(ctx context.Context, email string) ([]*InvitationPreview, error)
	CleanupExpiredInvitations(ctx context.Context) (int64, error)
}

// DeriveSlug derives a URL-safe slug from an organization name:
// lowercase, whitespace collapsed to hyphens, everything outside
// [a-z0-9-] stripped.
func DeriveSlug(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.Join(strings.Fields(slug), "-")
	slug = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return -1
	}, slug)
	return strings.Trim(slug, "-")
}

// generateToken generates an opaque invitation token (32 random bytes, hex)
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// randomSuffix returns a short random string used to de-collide slugs
// during auto-provisioning.
func randomSuffix() string {
	b := make([]byte, 3)
	if _, err := rand.Read(b); err != nil {
		return "x"
	}
	return hex.EncodeToString(b)
}

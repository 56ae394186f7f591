// Package authz holds the per-request authorization context and the guards
// that enforce role and membership requirements against it.
package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/finchly/tenancy/pkg/orgs"
)

// Context is the immutable per-request authorization context: who the
// caller is and which organization the request operates against. It is
// built once by the session middleware and threaded through explicitly,
// never stored in process-wide state.
type Context struct {
	UserID int64
	Email  string
	OrgID  int64
	Roles  []orgs.Role
}

// HasRole reports whether the context carries the given role in the
// active organization.
func (c *Context) HasRole(role orgs.Role) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the context carries the admin role.
func (c *Context) IsAdmin() bool {
	return c.HasRole(orgs.RoleAdmin)
}

// MembershipGetter resolves a user's membership in an organization.
// Satisfied by orgs.Service.
type MembershipGetter interface {
	GetMember(ctx context.Context, orgID, userID int64) (*orgs.Member, error)
}

// Guard answers authorization questions for a request context. These are
// pure checks against already-loaded membership state; no mutation.
type Guard struct {
	members MembershipGetter
}

// NewGuard creates a Guard backed by the given membership source.
func NewGuard(members MembershipGetter) *Guard {
	return &Guard{members: members}
}

// RequireAdmin fails with ErrForbidden unless the context holds the admin
// role in its active organization.
func (g *Guard) RequireAdmin(authCtx *Context) error {
	if authCtx == nil {
		return orgs.ErrUnauthenticated
	}
	if !authCtx.IsAdmin() {
		return fmt.Errorf("organization admin required: %w", orgs.ErrForbidden)
	}
	return nil
}

// RequireAdminOf fails with ErrForbidden unless the caller holds the
// admin role in orgID. The active organization is answered from the
// context; any other organization resolves through the membership store.
func (g *Guard) RequireAdminOf(ctx context.Context, authCtx *Context, orgID int64) error {
	if authCtx == nil {
		return orgs.ErrUnauthenticated
	}
	if orgID == authCtx.OrgID {
		return g.RequireAdmin(authCtx)
	}
	role, err := g.RequireMember(ctx, authCtx, orgID)
	if err != nil {
		return err
	}
	if role != orgs.RoleAdmin {
		return fmt.Errorf("organization admin required: %w", orgs.ErrForbidden)
	}
	return nil
}

// RequireMember fails with ErrForbidden unless the caller holds a
// membership in orgID, and returns the caller's role there. Used whenever
// an organization id comes from a path or body parameter rather than the
// trusted context, so a caller cannot act on an organization they do not
// belong to by supplying a different id.
func (g *Guard) RequireMember(ctx context.Context, authCtx *Context, orgID int64) (orgs.Role, error) {
	if authCtx == nil {
		return "", orgs.ErrUnauthenticated
	}
	if orgID == authCtx.OrgID && len(authCtx.Roles) > 0 {
		return authCtx.Roles[0], nil
	}
	member, err := g.members.GetMember(ctx, orgID, authCtx.UserID)
	if errors.Is(err, orgs.ErrNotFound) {
		return "", fmt.Errorf("not a member of this organization: %w", orgs.ErrForbidden)
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve membership: %w", err)
	}
	return member.Role, nil
}

package authz

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finchly/tenancy/pkg/orgs"
)

type stubMembers struct {
	member *orgs.Member
	err    error
	calls  int
}

func (s *stubMembers) GetMember(ctx context.Context, orgID, userID int64) (*orgs.Member, error) {
	s.calls++
	return s.member, s.err
}

func TestContextRoles(t *testing.T) {
	admin := &Context{UserID: 7, OrgID: 1, Roles: []orgs.Role{orgs.RoleAdmin}}
	assert.True(t, admin.IsAdmin())
	assert.True(t, admin.HasRole(orgs.RoleAdmin))
	assert.False(t, admin.HasRole(orgs.RoleUser))

	user := &Context{UserID: 8, OrgID: 1, Roles: []orgs.Role{orgs.RoleUser}}
	assert.False(t, user.IsAdmin())
}

func TestRequireAdmin(t *testing.T) {
	guard := NewGuard(&stubMembers{})

	t.Run("admin passes", func(t *testing.T) {
		err := guard.RequireAdmin(&Context{UserID: 7, OrgID: 1, Roles: []orgs.Role{orgs.RoleAdmin}})
		require.NoError(t, err)
	})

	t.Run("regular member is forbidden", func(t *testing.T) {
		err := guard.RequireAdmin(&Context{UserID: 8, OrgID: 1, Roles: []orgs.Role{orgs.RoleUser}})
		require.ErrorIs(t, err, orgs.ErrForbidden)
	})

	t.Run("nil context is unauthenticated", func(t *testing.T) {
		err := guard.RequireAdmin(nil)
		require.ErrorIs(t, err, orgs.ErrUnauthenticated)
	})
}

func TestRequireAdminOf(t *testing.T) {
	ctx := context.Background()

	t.Run("admin of the active organization passes without a lookup", func(t *testing.T) {
		members := &stubMembers{}
		guard := NewGuard(members)

		err := guard.RequireAdminOf(ctx, &Context{UserID: 7, OrgID: 1, Roles: []orgs.Role{orgs.RoleAdmin}}, 1)
		require.NoError(t, err)
		assert.Zero(t, members.calls)
	})

	t.Run("regular member of the active organization is forbidden", func(t *testing.T) {
		guard := NewGuard(&stubMembers{})

		err := guard.RequireAdminOf(ctx, &Context{UserID: 8, OrgID: 1, Roles: []orgs.Role{orgs.RoleUser}}, 1)
		require.ErrorIs(t, err, orgs.ErrForbidden)
	})

	t.Run("admin of another organization resolves through the store", func(t *testing.T) {
		members := &stubMembers{member: &orgs.Member{OrganizationID: 2, UserID: 7, Role: orgs.RoleAdmin}}
		guard := NewGuard(members)

		err := guard.RequireAdminOf(ctx, &Context{UserID: 7, OrgID: 1, Roles: []orgs.Role{orgs.RoleUser}}, 2)
		require.NoError(t, err)
		assert.Equal(t, 1, members.calls)
	})

	t.Run("regular member of another organization is forbidden", func(t *testing.T) {
		members := &stubMembers{member: &orgs.Member{OrganizationID: 2, UserID: 7, Role: orgs.RoleUser}}
		guard := NewGuard(members)

		err := guard.RequireAdminOf(ctx, &Context{UserID: 7, OrgID: 1, Roles: []orgs.Role{orgs.RoleAdmin}}, 2)
		require.ErrorIs(t, err, orgs.ErrForbidden)
	})

	t.Run("non-member is forbidden", func(t *testing.T) {
		members := &stubMembers{err: fmt.Errorf("member: %w", orgs.ErrNotFound)}
		guard := NewGuard(members)

		err := guard.RequireAdminOf(ctx, &Context{UserID: 7, OrgID: 1, Roles: []orgs.Role{orgs.RoleUser}}, 2)
		require.ErrorIs(t, err, orgs.ErrForbidden)
	})

	t.Run("nil context is unauthenticated", func(t *testing.T) {
		guard := NewGuard(&stubMembers{})
		err := guard.RequireAdminOf(ctx, nil, 1)
		require.ErrorIs(t, err, orgs.ErrUnauthenticated)
	})
}

func TestRequireMember(t *testing.T) {
	ctx := context.Background()

	t.Run("active organization short-circuits the lookup", func(t *testing.T) {
		members := &stubMembers{}
		guard := NewGuard(members)

		role, err := guard.RequireMember(ctx, &Context{UserID: 7, OrgID: 1, Roles: []orgs.Role{orgs.RoleAdmin}}, 1)
		require.NoError(t, err)
		assert.Equal(t, orgs.RoleAdmin, role)
		assert.Zero(t, members.calls)
	})

	t.Run("other organization resolves through the store", func(t *testing.T) {
		members := &stubMembers{member: &orgs.Member{OrganizationID: 2, UserID: 7, Role: orgs.RoleUser}}
		guard := NewGuard(members)

		role, err := guard.RequireMember(ctx, &Context{UserID: 7, OrgID: 1, Roles: []orgs.Role{orgs.RoleAdmin}}, 2)
		require.NoError(t, err)
		assert.Equal(t, orgs.RoleUser, role)
		assert.Equal(t, 1, members.calls)
	})

	t.Run("non-member is forbidden, not a 404", func(t *testing.T) {
		members := &stubMembers{err: fmt.Errorf("member: %w", orgs.ErrNotFound)}
		guard := NewGuard(members)

		_, err := guard.RequireMember(ctx, &Context{UserID: 7, OrgID: 1, Roles: []orgs.Role{orgs.RoleUser}}, 2)
		require.ErrorIs(t, err, orgs.ErrForbidden)
		assert.NotErrorIs(t, err, orgs.ErrNotFound)
	})

	t.Run("store error propagates", func(t *testing.T) {
		members := &stubMembers{err: fmt.Errorf("database connection error")}
		guard := NewGuard(members)

		_, err := guard.RequireMember(ctx, &Context{UserID: 7, OrgID: 1, Roles: []orgs.Role{orgs.RoleUser}}, 2)
		require.Error(t, err)
		assert.NotErrorIs(t, err, orgs.ErrForbidden)
	})

	t.Run("nil context is unauthenticated", func(t *testing.T) {
		guard := NewGuard(&stubMembers{})
		_, err := guard.RequireMember(ctx, nil, 1)
		require.ErrorIs(t, err, orgs.ErrUnauthenticated)
	})
}

package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finchly/tenancy/pkg/identity"
	"github.com/finchly/tenancy/pkg/orgs"
)

func TestGetMeHandler(t *testing.T) {
	t.Run("profile with active organization", func(t *testing.T) {
		f := newTestFixture(t, orgs.RoleAdmin)
		f.users.getUser = func(ctx context.Context, id int64) (*identity.User, error) {
			assert.Equal(t, int64(7), id)
			return &identity.User{ID: 7, Email: "jamie@example.com", Name: "Jamie Reed"}, nil
		}
		f.service.getOrg = func(ctx context.Context, id int64) (*orgs.Organization, error) {
			assert.Equal(t, int64(1), id)
			return activeOrg, nil
		}

		rec := f.do(t, "GET", "/me", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var body meResponse
		decodeJSON(t, rec, &body)
		assert.Equal(t, "jamie@example.com", body.User.Email)
		assert.Equal(t, int64(1), body.ActiveOrganization.ID)
		assert.Equal(t, orgs.RoleAdmin, body.Role)
	})

	t.Run("vanished user maps to 401", func(t *testing.T) {
		f := newTestFixture(t, orgs.RoleAdmin)
		f.users.getUser = func(ctx context.Context, id int64) (*identity.User, error) {
			return nil, identity.ErrUserNotFound
		}

		rec := f.do(t, "GET", "/me", nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestUpdateMeHandler(t *testing.T) {
	t.Run("updates the display name", func(t *testing.T) {
		f := newTestFixture(t, orgs.RoleUser)
		f.users.updateName = func(ctx context.Context, id int64, name string) (*identity.User, error) {
			assert.Equal(t, "Jamie R", name)
			return &identity.User{ID: 7, Email: "jamie@example.com", Name: name}, nil
		}

		rec := f.do(t, "PATCH", "/me", map[string]string{"name": " Jamie R "})
		require.Equal(t, http.StatusOK, rec.Code)

		var user identity.User
		decodeJSON(t, rec, &user)
		assert.Equal(t, "Jamie R", user.Name)
	})

	t.Run("missing name", func(t *testing.T) {
		f := newTestFixture(t, orgs.RoleUser)

		rec := f.do(t, "PATCH", "/me", map[string]string{})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("blank name", func(t *testing.T) {
		f := newTestFixture(t, orgs.RoleUser)

		rec := f.do(t, "PATCH", "/me", map[string]string{"name": "   "})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/finchly/tenancy/pkg/httputil"
	"github.com/finchly/tenancy/pkg/identity"
	"github.com/finchly/tenancy/pkg/orgs"
)

// meResponse pairs the caller's profile with their active organization.
type meResponse struct {
	User               *identity.User     `json:"user"`
	ActiveOrganization *orgs.Organization `json:"active_organization"`
	Role               orgs.Role          `json:"role"`
}

// GetMe returns the caller's profile and active organization.
func (s *Server) GetMe(w http.ResponseWriter, r *http.Request) {
	authCtx := s.auth(w, r)
	if authCtx == nil {
		return
	}

	user, err := s.users.GetUser(r.Context(), authCtx.UserID)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			httputil.WriteUnauthorized(w, "unknown user")
			return
		}
		writeServiceError(w, r, err)
		return
	}

	org, err := s.orgs.GetOrganization(r.Context(), authCtx.OrgID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	role := orgs.RoleUser
	if len(authCtx.Roles) > 0 {
		role = authCtx.Roles[0]
	}

	httputil.WriteSuccess(w, &meResponse{User: user, ActiveOrganization: org, Role: role})
}

type updateMeRequest struct {
	Name *string `json:"name,omitempty"`
}

// UpdateMe applies a partial profile update. Only the display name is
// writable; email belongs to the identity provider.
func (s *Server) UpdateMe(w http.ResponseWriter, r *http.Request) {
	authCtx := s.auth(w, r)
	if authCtx == nil {
		return
	}

	var req updateMeRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == nil {
		httputil.WriteValidationError(w, "name is required")
		return
	}
	name := strings.TrimSpace(*req.Name)
	if name == "" || len(name) > 100 {
		httputil.WriteValidationError(w, "name must be between 1 and 100 characters")
		return
	}

	user, err := s.users.UpdateDisplayName(r.Context(), authCtx.UserID, name)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			httputil.WriteUnauthorized(w, "unknown user")
			return
		}
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, user)
}

package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/finchly/tenancy/pkg/authz"
	"github.com/finchly/tenancy/pkg/httputil"
	"github.com/finchly/tenancy/pkg/orgs"
)

// CreateOrganization creates a new organization with the caller as its
// first admin.
func (s *Server) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	authCtx := s.auth(w, r)
	if authCtx == nil {
		return
	}

	var req orgs.CreateOrgRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	org, err := s.orgs.CreateOrganization(r.Context(), authCtx.UserID, &req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if s.metrics != nil {
		s.metrics.OrgsCreatedTotal.Inc()
	}

	// A freshly created organization becomes the caller's active one.
	if err := s.prefs.Write(w, authCtx.UserID, org.ID); err != nil {
		s.logger.WithError(err).Warn("failed to set preference cookie")
	}

	httputil.WriteCreated(w, &orgs.OrgWithRole{Organization: *org, Role: orgs.RoleAdmin})
}

// ListOrganizations lists the caller's organizations with their role in
// each.
func (s *Server) ListOrganizations(w http.ResponseWriter, r *http.Request) {
	authCtx := s.auth(w, r)
	if authCtx == nil {
		return
	}

	list, err := s.orgs.ListOrganizations(r.Context(), authCtx.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, list)
}

// GetOrganization returns one organization the caller belongs to.
func (s *Server) GetOrganization(w http.ResponseWriter, r *http.Request) {
	authCtx := s.auth(w, r)
	if authCtx == nil {
		return
	}
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "orgId")
	if !ok {
		return
	}

	if _, err := s.guard.RequireMember(r.Context(), authCtx, orgID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	org, err := s.orgs.GetOrganization(r.Context(), orgID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, org)
}

// UpdateOrganization applies a partial update. Admin only.
func (s *Server) UpdateOrganization(w http.ResponseWriter, r *http.Request) {
	authCtx := s.auth(w, r)
	if authCtx == nil {
		return
	}
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "orgId")
	if !ok {
		return
	}

	if err := s.requireOrgAdmin(w, r, authCtx, orgID); err != nil {
		return
	}

	var req orgs.UpdateOrgRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	org, err := s.orgs.UpdateOrganization(r.Context(), orgID, &req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, org)
}

// DeleteOrganization deletes an organization and all its memberships and
// invitations. Admin only; refused when it would leave the caller with
// no organization at all.
func (s *Server) DeleteOrganization(w http.ResponseWriter, r *http.Request) {
	authCtx := s.auth(w, r)
	if authCtx == nil {
		return
	}
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "orgId")
	if !ok {
		return
	}

	if err := s.requireOrgAdmin(w, r, authCtx, orgID); err != nil {
		return
	}

	if err := s.orgs.DeleteOrganization(r.Context(), orgID, authCtx.UserID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	// The preference may point at the deleted organization; the next
	// request re-resolves and reissues it.
	s.prefs.Clear(w)
	httputil.WriteNoContent(w)
}

type switchRequest struct {
	OrganizationID int64 `json:"organization_id"`
}

// SwitchOrganization changes the caller's active organization. The
// target must be one the caller belongs to; the choice persists in the
// preference cookie.
func (s *Server) SwitchOrganization(w http.ResponseWriter, r *http.Request) {
	authCtx := s.auth(w, r)
	if authCtx == nil {
		return
	}

	var req switchRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.OrganizationID <= 0 {
		httputil.WriteValidationError(w, "organization_id is required")
		return
	}

	role, err := s.guard.RequireMember(r.Context(), authCtx, req.OrganizationID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	org, err := s.orgs.GetOrganization(r.Context(), req.OrganizationID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if err := s.prefs.Write(w, authCtx.UserID, org.ID); err != nil {
		s.logger.WithError(err).Error("failed to set preference cookie")
		httputil.WriteInternalError(w, errors.New("internal server error"))
		return
	}

	httputil.WriteSuccess(w, &orgs.OrgWithRole{Organization: *org, Role: role})
}

// LeaveOrganization removes the caller from an organization: the one
// named in the body, or the active one when the body is empty. The last
// admin cannot leave; they must delete the organization or promote a
// replacement first.
func (s *Server) LeaveOrganization(w http.ResponseWriter, r *http.Request) {
	authCtx := s.auth(w, r)
	if authCtx == nil {
		return
	}

	var req switchRequest
	if err := httputil.ParseJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	orgID := req.OrganizationID
	if orgID == 0 {
		orgID = authCtx.OrgID
	}

	if err := s.orgs.RemoveMember(r.Context(), orgID, authCtx.UserID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	if s.metrics != nil {
		s.metrics.MembershipChangesTotal.WithLabelValues("removed").Inc()
	}

	if orgID == authCtx.OrgID {
		s.prefs.Clear(w)
	}
	httputil.WriteNoContent(w)
}

// requireOrgAdmin asks the guard whether the caller administers orgID,
// writing the error response itself on failure.
func (s *Server) requireOrgAdmin(w http.ResponseWriter, r *http.Request, authCtx *authz.Context, orgID int64) error {
	if err := s.guard.RequireAdminOf(r.Context(), authCtx, orgID); err != nil {
		writeServiceError(w, r, err)
		return err
	}
	return nil
}

package api

import (
	"net/http"
	"strings"

	"github.com/finchly/tenancy/pkg/httputil"
	"github.com/finchly/tenancy/pkg/observability"
	"github.com/finchly/tenancy/pkg/orgs"
)

// ListMembers lists an organization's members. Any member may look.
func (s *Server) ListMembers(w http.ResponseWriter, r *http.Request) {
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

	members, err := s.orgs.ListMembers(r.Context(), orgID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, members)
}

type inviteRequest struct {
	Email string    `json:"email"`
	Role  orgs.Role `json:"role"`
}

// InviteMember invites an email address into the organization. Existing
// users are added as members immediately; unknown addresses get a
// pending invitation delivered by email. Admin only.
func (s *Server) InviteMember(w http.ResponseWriter, r *http.Request) {
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

	var req inviteRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Role == "" {
		req.Role = orgs.RoleUser
	}

	result, err := s.orgs.InviteMember(r.Context(), orgID, req.Email, req.Role, authCtx.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if result.Invitation != nil {
		if s.metrics != nil {
			s.metrics.InvitationsCreatedTotal.Inc()
		}
		s.sendInvitationMail(r, result.Invitation, orgID, authCtx.UserID)
	} else if s.metrics != nil {
		s.metrics.MembershipChangesTotal.WithLabelValues("added").Inc()
	}

	httputil.WriteCreated(w, result)
}

// sendInvitationMail dispatches the invitation email. Delivery failures
// are logged, not surfaced: the invitation row exists and the admin can
// re-send by cancelling and re-inviting.
func (s *Server) sendInvitationMail(r *http.Request, inv *orgs.Invitation, orgID, inviterID int64) {
	if s.mailer == nil {
		return
	}

	orgName := ""
	if org, err := s.orgs.GetOrganization(r.Context(), orgID); err == nil {
		orgName = org.Name
	}
	inviterName := ""
	if inviter, err := s.users.GetUser(r.Context(), inviterID); err == nil {
		inviterName = inviter.Name
	}

	if err := s.mailer.SendInvitation(r.Context(), inv, orgName, inviterName); err != nil {
		observability.FromContext(r.Context()).WithError(err).WithField("email", inv.Email).
			Error("failed to send invitation email")
	}
}

type updateRoleRequest struct {
	Role orgs.Role `json:"role"`
}

// UpdateMemberRole changes a member's role. Admin only; self-targeting
// and demoting the last admin are refused.
func (s *Server) UpdateMemberRole(w http.ResponseWriter, r *http.Request) {
	authCtx := s.auth(w, r)
	if authCtx == nil {
		return
	}
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "orgId")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathInt64OrError(w, r, "userId")
	if !ok {
		return
	}

	if err := s.requireOrgAdmin(w, r, authCtx, orgID); err != nil {
		return
	}
	if userID == authCtx.UserID {
		httputil.WriteBadRequest(w, "cannot change your own role; ask another admin")
		return
	}

	var req updateRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := s.orgs.UpdateMemberRole(r.Context(), orgID, userID, req.Role); err != nil {
		writeServiceError(w, r, err)
		return
	}

	if s.metrics != nil {
		s.metrics.MembershipChangesTotal.WithLabelValues("role_changed").Inc()
	}

	member, err := s.orgs.GetMember(r.Context(), orgID, userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, member)
}

// RemoveMember removes a member from the organization. Admins may remove
// anyone but the last admin; a regular member may only remove themselves.
func (s *Server) RemoveMember(w http.ResponseWriter, r *http.Request) {
	authCtx := s.auth(w, r)
	if authCtx == nil {
		return
	}
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "orgId")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathInt64OrError(w, r, "userId")
	if !ok {
		return
	}

	role, err := s.guard.RequireMember(r.Context(), authCtx, orgID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if role != orgs.RoleAdmin && userID != authCtx.UserID {
		httputil.WriteForbidden(w, "organization admin required")
		return
	}

	if err := s.orgs.RemoveMember(r.Context(), orgID, userID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	if s.metrics != nil {
		s.metrics.MembershipChangesTotal.WithLabelValues("removed").Inc()
	}
	httputil.WriteNoContent(w)
}

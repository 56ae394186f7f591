package api

import (
	"net/http"

	"github.com/finchly/tenancy/pkg/httputil"
)

// LookupInvitation previews an invitation by token. Public: the invitee
// has not signed in yet. The response never echoes the token back.
func (s *Server) LookupInvitation(w http.ResponseWriter, r *http.Request) {
	token := httputil.ParseQueryString(r, "token", "")
	if !httputil.RequireNonEmpty(w, token, "token") {
		return
	}

	preview, err := s.orgs.LookupInvitation(r.Context(), token)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, preview)
}

type acceptRequest struct {
	Token string `json:"token"`
}

// AcceptInvitation redeems an invitation for the signed-in caller. The
// session email must match the invited address.
func (s *Server) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	authCtx := s.auth(w, r)
	if authCtx == nil {
		return
	}

	var req acceptRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Token, "token") {
		return
	}

	member, err := s.orgs.AcceptInvitation(r.Context(), req.Token, authCtx.UserID, authCtx.Email)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if s.metrics != nil {
		s.metrics.InvitationsAcceptedTotal.Inc()
		s.metrics.MembershipChangesTotal.WithLabelValues("added").Inc()
	}

	// Joining an organization makes it the active one.
	if err := s.prefs.Write(w, authCtx.UserID, member.OrganizationID); err != nil {
		s.logger.WithError(err).Warn("failed to set preference cookie")
	}

	httputil.WriteSuccess(w, member)
}

// ListOrgInvitations lists an organization's pending invitations. Admin
// only: invitations expose invitee addresses.
func (s *Server) ListOrgInvitations(w http.ResponseWriter, r *http.Request) {
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

	invitations, err := s.orgs.ListOrgInvitations(r.Context(), orgID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, invitations)
}

// CancelInvitation withdraws a pending invitation. Admin only.
func (s *Server) CancelInvitation(w http.ResponseWriter, r *http.Request) {
	authCtx := s.auth(w, r)
	if authCtx == nil {
		return
	}
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "orgId")
	if !ok {
		return
	}
	invitationID, ok := httputil.ParsePathInt64OrError(w, r, "invitationId")
	if !ok {
		return
	}

	if err := s.requireOrgAdmin(w, r, authCtx, orgID); err != nil {
		return
	}

	if err := s.orgs.CancelInvitation(r.Context(), orgID, invitationID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	if s.metrics != nil {
		s.metrics.InvitationsExpiredTotal.Inc()
	}
	httputil.WriteNoContent(w)
}

// ListUserInvitations lists pending invitations addressed to the
// caller's email.
func (s *Server) ListUserInvitations(w http.ResponseWriter, r *http.Request) {
	authCtx := s.auth(w, r)
	if authCtx == nil {
		return
	}

	invitations, err := s.orgs.ListUserInvitations(r.Context(), authCtx.Email)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, invitations)
}

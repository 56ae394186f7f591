package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/finchly/tenancy/pkg/authz"
	"github.com/finchly/tenancy/pkg/httputil"
	"github.com/finchly/tenancy/pkg/identity"
	"github.com/finchly/tenancy/pkg/mailer"
	"github.com/finchly/tenancy/pkg/middleware"
	"github.com/finchly/tenancy/pkg/observability"
	"github.com/finchly/tenancy/pkg/orgs"
)

// Server wires the HTTP surface to the organization service.
type Server struct {
	orgs    orgs.Service
	users   identity.Store
	guard   *authz.Guard
	mailer  mailer.Mailer
	prefs   *middleware.PreferenceCookie
	metrics *observability.Metrics
	logger  *observability.Logger
}

// Options configures optional server collaborators.
type Options struct {
	Mailer  mailer.Mailer
	Metrics *observability.Metrics
	Logger  *observability.Logger
}

// NewServer creates an API server.
func NewServer(orgService orgs.Service, users identity.Store, prefs *middleware.PreferenceCookie, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Server{
		orgs:    orgService,
		users:   users,
		guard:   authz.NewGuard(orgService),
		mailer:  opts.Mailer,
		prefs:   prefs,
		metrics: opts.Metrics,
		logger:  opts.Logger,
	}
}

// Router builds the full route table. session guards the authenticated
// surface; publicLimit throttles the unauthenticated invitation lookup
// (nil disables throttling).
func (s *Server) Router(session *middleware.SessionMiddleware, publicLimit *middleware.DistributedRateLimiter) *mux.Router {
	router := mux.NewRouter()

	// Public: invitation preview by token. No session required so the
	// invitee can see what they were invited to before signing in.
	public := router.PathPrefix("/invitations").Subrouter()
	public.Handle("/lookup", publicLimit.Handler(http.HandlerFunc(s.LookupInvitation))).Methods("GET")

	authed := router.NewRoute().Subrouter()
	authed.Use(session.Handler)

	// Organizations
	authed.HandleFunc("/organizations", s.CreateOrganization).Methods("POST")
	authed.HandleFunc("/organizations", s.ListOrganizations).Methods("GET")
	authed.HandleFunc("/organizations/switch", s.SwitchOrganization).Methods("POST")
	authed.HandleFunc("/organizations/leave", s.LeaveOrganization).Methods("POST")
	authed.HandleFunc("/organizations/{orgId:[0-9]+}", s.GetOrganization).Methods("GET")
	authed.HandleFunc("/organizations/{orgId:[0-9]+}", s.UpdateOrganization).Methods("PATCH")
	authed.HandleFunc("/organizations/{orgId:[0-9]+}", s.DeleteOrganization).Methods("DELETE")

	// Members. Invite/add is reachable on both /members and /invitations;
	// the latter is the canonical route.
	authed.HandleFunc("/organizations/{orgId:[0-9]+}/members", s.ListMembers).Methods("GET")
	authed.HandleFunc("/organizations/{orgId:[0-9]+}/members", s.InviteMember).Methods("POST")
	authed.HandleFunc("/organizations/{orgId:[0-9]+}/members/{userId:[0-9]+}", s.UpdateMemberRole).Methods("PATCH")
	authed.HandleFunc("/organizations/{orgId:[0-9]+}/members/{userId:[0-9]+}", s.RemoveMember).Methods("DELETE")

	// Invitations (organization-scoped)
	authed.HandleFunc("/organizations/{orgId:[0-9]+}/invitations", s.InviteMember).Methods("POST")
	authed.HandleFunc("/organizations/{orgId:[0-9]+}/invitations", s.ListOrgInvitations).Methods("GET")
	authed.HandleFunc("/organizations/{orgId:[0-9]+}/invitations/{invitationId:[0-9]+}", s.CancelInvitation).Methods("DELETE")

	// Invitations (caller-scoped)
	authed.HandleFunc("/invitations/accept", s.AcceptInvitation).Methods("POST")
	authed.HandleFunc("/invitations/user", s.ListUserInvitations).Methods("GET")

	// Profile
	authed.HandleFunc("/me", s.GetMe).Methods("GET")
	authed.HandleFunc("/me", s.UpdateMe).Methods("PATCH")

	return router
}

// auth returns the request's authorization context, writing a 401 when
// the session middleware did not install one.
func (s *Server) auth(w http.ResponseWriter, r *http.Request) *authz.Context {
	authCtx := middleware.AuthFromContext(r)
	if authCtx == nil {
		httputil.WriteUnauthorized(w, "authentication required")
	}
	return authCtx
}

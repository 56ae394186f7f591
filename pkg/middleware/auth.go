package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/finchly/tenancy/pkg/authz"
	"github.com/finchly/tenancy/pkg/contextkeys"
	"github.com/finchly/tenancy/pkg/httputil"
	"github.com/finchly/tenancy/pkg/identity"
	"github.com/finchly/tenancy/pkg/observability"
	"github.com/finchly/tenancy/pkg/orgs"
)

// SessionMiddleware authenticates the session token, resolves the
// caller's active organization, and installs the authorization context
// for downstream handlers. Every authenticated request leaves this
// middleware with a valid organization: users with no membership get a
// default organization provisioned.
type SessionMiddleware struct {
	authenticator identity.Authenticator
	orgs          orgs.Service
	prefs         *PreferenceCookie
	metrics       *observability.Metrics
}

// NewSessionMiddleware creates a SessionMiddleware. metrics may be nil.
func NewSessionMiddleware(authenticator identity.Authenticator, orgService orgs.Service, prefs *PreferenceCookie, metrics *observability.Metrics) *SessionMiddleware {
	return &SessionMiddleware{
		authenticator: authenticator,
		orgs:          orgService,
		prefs:         prefs,
		metrics:       metrics,
	}
}

// Handler wraps an HTTP handler with session authentication and active
// organization resolution.
func (m *SessionMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			httputil.WriteUnauthorized(w, "missing authorization header")
			return
		}

		session, err := m.authenticator.Authenticate(token)
		if err != nil {
			httputil.WriteUnauthorized(w, "invalid session")
			return
		}

		preferred := m.prefs.Read(r, session.UserID)

		resolution, err := m.orgs.ResolveActiveOrganization(r.Context(), session.UserID, preferred)
		if err != nil {
			if errors.Is(err, orgs.ErrNotFound) {
				// Session subject no longer exists.
				httputil.WriteUnauthorized(w, "unknown user")
				return
			}
			observability.FromContext(r.Context()).WithError(err).Error("failed to resolve active organization")
			httputil.WriteInternalError(w, errors.New("internal server error"))
			return
		}
		if resolution.Provisioned && m.metrics != nil {
			m.metrics.OrgsProvisionedTotal.Inc()
		}

		// Keep the cookie in step with what was actually resolved, so a
		// stale preference (left-over from a deleted membership) heals
		// itself on the next request.
		if resolution.Org.ID != preferred {
			if err := m.prefs.Write(w, session.UserID, resolution.Org.ID); err != nil {
				observability.FromContext(r.Context()).WithError(err).Warn("failed to refresh preference cookie")
			}
		}

		authCtx := &authz.Context{
			UserID: session.UserID,
			Email:  session.Email,
			OrgID:  resolution.Org.ID,
			Roles:  []orgs.Role{resolution.Role},
		}
		ctx := contextkeys.WithValue(r.Context(), contextkeys.AuthKey, authCtx)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AuthFromContext returns the authorization context installed by the
// session middleware, or nil for unauthenticated requests.
func AuthFromContext(r *http.Request) *authz.Context {
	authCtx, _ := contextkeys.Value(r.Context(), contextkeys.AuthKey).(*authz.Context)
	return authCtx
}

// bearerToken extracts the token from a "Bearer <token>" header.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/finchly/tenancy/pkg/identity"
	"github.com/finchly/tenancy/pkg/middleware"
	"github.com/finchly/tenancy/pkg/observability"
	"github.com/finchly/tenancy/pkg/orgs"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

// mockService implements orgs.Service with per-test function fields. A
// call to a method with no function set panics, flagging the test that
// forgot to stub it.
type mockService struct {
	createOrg     func(ctx context.Context, creatorID int64, req *orgs.CreateOrgRequest) (*orgs.Organization, error)
	getOrg        func(ctx context.Context, id int64) (*orgs.Organization, error)
	listOrgs      func(ctx context.Context, userID int64) ([]*orgs.OrgWithRole, error)
	updateOrg     func(ctx context.Context, id int64, updates *orgs.UpdateOrgRequest) (*orgs.Organization, error)
	deleteOrg     func(ctx context.Context, id, requesterID int64) error
	resolve       func(ctx context.Context, userID, preferredOrgID int64) (*orgs.Resolution, error)
	listMembers   func(ctx context.Context, orgID int64) ([]*orgs.Member, error)
	getMember     func(ctx context.Context, orgID, userID int64) (*orgs.Member, error)
	inviteMember  func(ctx context.Context, orgID int64, email string, role orgs.Role, invitedBy int64) (*orgs.InviteResult, error)
	updateRole    func(ctx context.Context, orgID, userID int64, role orgs.Role) error
	removeMember  func(ctx context.Context, orgID, userID int64) error
	lookupInv     func(ctx context.Context, token string) (*orgs.InvitationPreview, error)
	acceptInv     func(ctx context.Context, token string, userID int64, email string) (*orgs.Member, error)
	cancelInv     func(ctx context.Context, orgID, invitationID int64) error
	listOrgInvs   func(ctx context.Context, orgID int64) ([]*orgs.Invitation, error)
	listUserInvs  func(ctx context.Context, email string) ([]*orgs.InvitationPreview, error)
	cleanupExpiry func(ctx context.Context) (int64, error)
}

func (m *mockService) CreateOrganization(ctx context.Context, creatorID int64, req *orgs.CreateOrgRequest) (*orgs.Organization, error) {
	return m.createOrg(ctx, creatorID, req)
}
func (m *mockService) GetOrganization(ctx context.Context, id int64) (*orgs.Organization, error) {
	return m.getOrg(ctx, id)
}
func (m *mockService) ListOrganizations(ctx context.Context, userID int64) ([]*orgs.OrgWithRole, error) {
	return m.listOrgs(ctx, userID)
}
func (m *mockService) UpdateOrganization(ctx context.Context, id int64, updates *orgs.UpdateOrgRequest) (*orgs.Organization, error) {
	return m.updateOrg(ctx, id, updates)
}
func (m *mockService) DeleteOrganization(ctx context.Context, id, requesterID int64) error {
	return m.deleteOrg(ctx, id, requesterID)
}
func (m *mockService) ResolveActiveOrganization(ctx context.Context, userID, preferredOrgID int64) (*orgs.Resolution, error) {
	return m.resolve(ctx, userID, preferredOrgID)
}
func (m *mockService) ListMembers(ctx context.Context, orgID int64) ([]*orgs.Member, error) {
	return m.listMembers(ctx, orgID)
}
func (m *mockService) GetMember(ctx context.Context, orgID, userID int64) (*orgs.Member, error) {
	return m.getMember(ctx, orgID, userID)
}
func (m *mockService) InviteMember(ctx context.Context, orgID int64, email string, role orgs.Role, invitedBy int64) (*orgs.InviteResult, error) {
	return m.inviteMember(ctx, orgID, email, role, invitedBy)
}
func (m *mockService) UpdateMemberRole(ctx context.Context, orgID, userID int64, role orgs.Role) error {
	return m.updateRole(ctx, orgID, userID, role)
}
func (m *mockService) RemoveMember(ctx context.Context, orgID, userID int64) error {
	return m.removeMember(ctx, orgID, userID)
}
func (m *mockService) LookupInvitation(ctx context.Context, token string) (*orgs.InvitationPreview, error) {
	return m.lookupInv(ctx, token)
}
func (m *mockService) AcceptInvitation(ctx context.Context, token string, userID int64, email string) (*orgs.Member, error) {
	return m.acceptInv(ctx, token, userID, email)
}
func (m *mockService) CancelInvitation(ctx context.Context, orgID, invitationID int64) error {
	return m.cancelInv(ctx, orgID, invitationID)
}
func (m *mockService) ListOrgInvitations(ctx context.Context, orgID int64) ([]*orgs.Invitation, error) {
	return m.listOrgInvs(ctx, orgID)
}
func (m *mockService) ListUserInvitations(ctx context.Context, email string) ([]*orgs.InvitationPreview, error) {
	return m.listUserInvs(ctx, email)
}
func (m *mockService) CleanupExpiredInvitations(ctx context.Context) (int64, error) {
	return m.cleanupExpiry(ctx)
}

// mockUserStore implements identity.Store.
type mockUserStore struct {
	getUser        func(ctx context.Context, id int64) (*identity.User, error)
	getUserByEmail func(ctx context.Context, email string) (*identity.User, error)
	updateName     func(ctx context.Context, id int64, name string) (*identity.User, error)
}

func (m *mockUserStore) GetUser(ctx context.Context, id int64) (*identity.User, error) {
	return m.getUser(ctx, id)
}
func (m *mockUserStore) GetUserByEmail(ctx context.Context, email string) (*identity.User, error) {
	return m.getUserByEmail(ctx, email)
}
func (m *mockUserStore) UpdateDisplayName(ctx context.Context, id int64, name string) (*identity.User, error) {
	return m.updateName(ctx, id, name)
}

// recordingMailer captures dispatched invitations.
type recordingMailer struct {
	sent []*orgs.Invitation
}

func (m *recordingMailer) SendInvitation(ctx context.Context, inv *orgs.Invitation, orgName, inviterName string) error {
	m.sent = append(m.sent, inv)
	return nil
}

type testFixture struct {
	service *mockService
	users   *mockUserStore
	mailer  *recordingMailer
	router  *mux.Router
	token   string
}

// activeOrg is what the session middleware resolves for the test user
// (user 7, jamie@example.com) unless a test overrides resolve.
var activeOrg = &orgs.Organization{ID: 1, Name: "Acme", Slug: "acme"}

func newTestFixture(t *testing.T, role orgs.Role) *testFixture {
	t.Helper()

	service := &mockService{
		resolve: func(ctx context.Context, userID, preferredOrgID int64) (*orgs.Resolution, error) {
			return &orgs.Resolution{Org: activeOrg, Role: role}, nil
		},
	}
	users := &mockUserStore{}
	sink := &recordingMailer{}

	authenticator := identity.NewJWTAuthenticator(testSecret)
	token, err := authenticator.IssueSession(7, "jamie@example.com", time.Hour)
	require.NoError(t, err)

	prefs := middleware.NewPreferenceCookie("tenancy_active_org", testSecret, time.Hour, false)
	server := NewServer(service, users, prefs, Options{
		Mailer: sink,
		Logger: observability.NewLogger(observability.ErrorLevel, io.Discard),
	})
	session := middleware.NewSessionMiddleware(authenticator, service, prefs, nil)

	return &testFixture{
		service: service,
		users:   users,
		mailer:  sink,
		router:  server.Router(session, nil),
		token:   token,
	}
}

func (f *testFixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+f.token)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dest))
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	msg, _ := body["error"].(string)
	return msg
}

func TestRouterRejectsUnauthenticated(t *testing.T) {
	f := newTestFixture(t, orgs.RoleAdmin)

	req := httptest.NewRequest("GET", "/organizations", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLookupIsPublic(t *testing.T) {
	f := newTestFixture(t, orgs.RoleAdmin)
	f.service.lookupInv = func(ctx context.Context, token string) (*orgs.InvitationPreview, error) {
		return &orgs.InvitationPreview{ID: 3, OrganizationName: "Acme"}, nil
	}

	// No Authorization header at all.
	req := httptest.NewRequest("GET", "/invitations/lookup?token=sometoken", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

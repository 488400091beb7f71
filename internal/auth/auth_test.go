// internal/auth/auth_test.go
package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_IssueAndValidate(t *testing.T) {
	s := NewService([]byte("test-secret"), nil)

	token, err := s.IssueToken("alice", RoleOperator)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := s.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, RoleOperator, claims.Role)
	assert.Equal(t, "continuity", claims.Issuer)
}

func TestService_RejectsUnknownRole(t *testing.T) {
	s := NewService([]byte("test-secret"), nil)
	_, err := s.IssueToken("alice", Role("superuser"))
	assert.Error(t, err)
}

func TestService_RejectsForeignToken(t *testing.T) {
	issuer := NewService([]byte("secret-one"), nil)
	validator := NewService([]byte("secret-two"), nil)

	token, err := issuer.IssueToken("alice", RoleAdmin)
	require.NoError(t, err)

	_, err = validator.ValidateToken(token)
	assert.Error(t, err)
}

func TestService_RejectsGarbage(t *testing.T) {
	s := NewService([]byte("test-secret"), nil)
	_, err := s.ValidateToken("not.a.token")
	assert.Error(t, err)
}

func protectedHandler(t *testing.T, s *Service, role Role) http.Handler {
	t.Helper()
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return s.Middleware(RequireRole(role)(inner))
}

func TestMiddleware_RequiresBearer(t *testing.T) {
	s := NewService([]byte("test-secret"), nil)
	h := protectedHandler(t, s, RoleOperator)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer bogus")
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRole_RoleGating(t *testing.T) {
	s := NewService([]byte("test-secret"), nil)

	operatorToken, err := s.IssueToken("alice", RoleOperator)
	require.NoError(t, err)
	adminToken, err := s.IssueToken("bob", RoleAdmin)
	require.NoError(t, err)

	adminOnly := protectedHandler(t, s, RoleAdmin)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+operatorToken)
	adminOnly.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code, "operator cannot reach admin routes")

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	adminOnly.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	operatorRoutes := protectedHandler(t, s, RoleOperator)
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	operatorRoutes.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code, "admin satisfies operator routes")
}

func TestApprovalRegistry_NofM(t *testing.T) {
	r := NewApprovalRegistry(2, []string{"alice", "bob", "carol"})

	assert.False(t, r.Approved("plan-1"))

	_, err := r.Approve("plan-1", "alice")
	require.NoError(t, err)
	assert.False(t, r.Approved("plan-1"), "one of two approvals")

	_, err = r.Approve("plan-1", "bob")
	require.NoError(t, err)
	assert.True(t, r.Approved("plan-1"))

	assert.Len(t, r.Approvals("plan-1"), 2)
}

func TestApprovalRegistry_DuplicateApprover(t *testing.T) {
	r := NewApprovalRegistry(2, []string{"alice", "bob"})

	_, err := r.Approve("plan-1", "alice")
	require.NoError(t, err)
	_, err = r.Approve("plan-1", "alice")
	assert.Error(t, err, "the same approver cannot count twice")
	assert.False(t, r.Approved("plan-1"))
}

func TestApprovalRegistry_UnauthorizedApprover(t *testing.T) {
	r := NewApprovalRegistry(1, []string{"alice"})
	_, err := r.Approve("plan-1", "mallory")
	assert.Error(t, err)
}

func TestApprovalRegistry_ZeroRequiredDisablesGate(t *testing.T) {
	r := NewApprovalRegistry(0, nil)
	assert.True(t, r.Approved("plan-any"))
}

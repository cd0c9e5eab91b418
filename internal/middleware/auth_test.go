package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/campaignfund/internal/model"
)

var testPrincipal = model.Principal{
	ID:        "user-42",
	Role:      model.RoleDonor,
	Email:     "asha@example.org",
	FirstName: "Asha",
	Username:  "asha",
	Phone:     "+919876543210",
}

func TestAuthMiddleware_WithValidCookie(t *testing.T) {
	m := NewAuthMiddleware("test-secret")

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		p, ok := PrincipalFromContext(r.Context())
		require.True(t, ok, "principal not in context")
		assert.Equal(t, testPrincipal, p)
	})

	w := httptest.NewRecorder()
	require.NoError(t, m.SetAuthCookie(w, testPrincipal))
	resCookies := w.Result().Cookies()
	require.NotEmpty(t, resCookies, "no cookies set by SetAuthCookie")

	r := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.AddCookie(resCookies[0])

	m.Middleware(next).ServeHTTP(httptest.NewRecorder(), r)

	assert.True(t, nextCalled, "next handler was not called")
}

func TestAuthMiddleware_WithBearerToken(t *testing.T) {
	m := NewAuthMiddleware("test-secret")
	token, err := m.IssueToken(testPrincipal)
	require.NoError(t, err)

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
	})

	r := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	m.Middleware(next).ServeHTTP(httptest.NewRecorder(), r)

	assert.True(t, nextCalled)
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	m := NewAuthMiddleware("test-secret")

	foreign, err := NewAuthMiddleware("other-secret").IssueToken(testPrincipal)
	require.NoError(t, err)

	expired := NewAuthMiddleware("test-secret")
	expired.now = func() time.Time { return time.Now().Add(-30 * 24 * time.Hour) }
	old, err := expired.IssueToken(testPrincipal)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{name: "no token"},
		{name: "garbage", header: "Bearer not-a-jwt"},
		{name: "foreign signature", header: "Bearer " + foreign},
		{name: "expired", header: "Bearer " + old},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatalf("next handler should not be called")
			})

			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}

			m.Middleware(next).ServeHTTP(w, r)

			assert.Equal(t, http.StatusUnauthorized, w.Result().StatusCode)
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name      string
		principal *model.Principal
		want      int
	}{
		{name: "anonymous", want: http.StatusUnauthorized},
		{name: "donor", principal: &testPrincipal, want: http.StatusForbidden},
		{name: "admin", principal: &model.Principal{ID: "a", Role: model.RoleAdmin}, want: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.principal != nil {
				r = r.WithContext(WithPrincipal(r.Context(), *tt.principal))
			}
			w := httptest.NewRecorder()

			RequireAdmin(next).ServeHTTP(w, r)

			assert.Equal(t, tt.want, w.Result().StatusCode)
		})
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get(RequestIDHeader))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(RequestIDHeader, "abc-123")
	h.ServeHTTP(httptest.NewRecorder(), r)
	assert.Equal(t, "abc-123", seen)
}

func TestAuthMiddleware_Optional(t *testing.T) {
	m := NewAuthMiddleware("test-secret")
	token, err := m.IssueToken(testPrincipal)
	require.NoError(t, err)

	var (
		got model.Principal
		ok  bool
	)
	h := m.Optional(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = PrincipalFromContext(r.Context())
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/campaigns", nil))
	assert.False(t, ok)

	r := httptest.NewRequest(http.MethodGet, "/api/campaigns", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	h.ServeHTTP(httptest.NewRecorder(), r)
	assert.True(t, ok)
	assert.Equal(t, testPrincipal.ID, got.ID)
}

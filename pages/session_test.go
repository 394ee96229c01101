package pages

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevenitynet/reliefboard/model"
	"github.com/sevenitynet/reliefboard/session"
)

func TestSafeRedirect(t *testing.T) {
	tests := map[string]string{
		"":                       "/",
		"/donations?new=true":    "/donations?new=true",
		"//evil.example":         "/",
		"/\\evil.example":        "/",
		"https://evil.example/x": "/",
		"donations":              "/",
		"/\t/evil.example":       "/",
		"/\n/evil.example":       "/",
		"/\r/evil.example":       "/",
		"/reports\x7f":           "/",
		"/a\\b":                  "/",
		"/account#profile":       "/account#profile",
		"/%zz":                   "/",
	}

	for in, want := range tests {
		assert.Equal(t, want, SafeRedirect(in), in)
	}
}

func TestLoginPage(t *testing.T) {
	engine, _ := newTestServer(anonymous(), &dashboardBackend{}, nil)

	w := serve(engine, http.MethodGet, "/login?redirect=%2Fdonations", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "/donations", decode[LoginView](t, w).Redirect)
}

func TestLoginPage_Authenticated(t *testing.T) {
	engine, _ := newTestServer(loggedIn(t, model.RoleDonator), &dashboardBackend{}, nil)

	w := serve(engine, http.MethodGet, "/login?redirect=%2Fdonations", nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/donations", w.Header().Get("Location"))

	w = serve(engine, http.MethodGet, "/login?redirect=%2F%2Fevil.example", nil)
	assert.Equal(t, "/", w.Header().Get("Location"))

	w = serve(engine, http.MethodGet, "/login?redirect=%2F%09%2Fevil.example", nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))

	w = serve(engine, http.MethodGet, "/signup", nil)
	assert.Equal(t, http.StatusFound, w.Code)
}

// An anonymous visit to a guarded page is sent to login; after logging in the page renders.
func TestLogIn_ThenNavigate(t *testing.T) {
	store := anonymous()
	engine, _ := newTestServer(store, &dashboardBackend{}, nil)

	w := serve(engine, http.MethodGet, "/account", nil)
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login?redirect=%2Faccount", w.Header().Get("Location"))

	w = serve(engine, http.MethodPost, "/api/login", map[string]string{
		"email":    "a@b.com",
		"password": "pw123456",
		"redirect": "/account",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[SessionResponse](t, w)
	assert.Equal(t, session.StatusSuccess, res.Status)
	assert.Equal(t, "/account", res.Redirect)

	w = serve(engine, http.MethodGet, "/account", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLogIn_UnsafeRedirect(t *testing.T) {
	engine, _ := newTestServer(anonymous(), &dashboardBackend{}, nil)

	w := serve(engine, http.MethodPost, "/api/login", map[string]string{
		"email":    "a@b.com",
		"password": "pw123456",
		"redirect": "/\t/evil.example",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "/", decode[SessionResponse](t, w).Redirect)
}

func TestLogIn_Rejected(t *testing.T) {
	store := anonymous()
	engine, _ := newTestServer(store, &dashboardBackend{}, nil)

	w := serve(engine, http.MethodPost, "/api/login", map[string]string{"email": "a@b.com", "password": "wrong"})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"error"}`, w.Body.String())
	assert.False(t, store.Snapshot().Authenticated())
}

func TestSignUp_DoesNotLogIn(t *testing.T) {
	store := anonymous()
	engine, _ := newTestServer(store, &dashboardBackend{}, nil)

	w := serve(engine, http.MethodPost, "/api/signup", map[string]string{
		"firstName": "Ann",
		"lastName":  "Lee",
		"role":      "volunteer",
		"email":     "ann@example.com",
		"password":  "pw123456",
		"phone":     "123456789",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "/login", decode[SessionResponse](t, w).Redirect)
	assert.False(t, store.Snapshot().Authenticated())

	w = serve(engine, http.MethodPost, "/api/signup", map[string]string{"email": "ann@example.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogOut(t *testing.T) {
	store := loggedIn(t, model.RoleCharity)
	engine, _ := newTestServer(store, &dashboardBackend{}, nil)

	w := serve(engine, http.MethodPost, "/api/logout", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, store.Snapshot().Authenticated())

	w = serve(engine, http.MethodGet, "/manage_resources", nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login?redirect=%2Fmanage_resources", w.Header().Get("Location"))
}

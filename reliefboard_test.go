package reliefboard

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevenitynet/reliefboard/auth"
	"github.com/sevenitynet/reliefboard/config"
	"github.com/sevenitynet/reliefboard/hook"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// reliefAPI fakes the relief backend. Only "pw123456" logs in; every user is a donator.
func reliefAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/login", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		body := new(bytes.Buffer)
		_, _ = body.ReadFrom(r.Body)
		if !strings.Contains(body.String(), `"pw123456"`) {
			_, _ = w.Write([]byte(`{"status":"error"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"success","token":"tok-7","id":7}`))
	})
	mux.HandleFunc("GET /api/user/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-7" {
			http.Error(w, `{"message":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":` + r.PathValue("id") + `,"firstName":"Ann","lastName":"Lee","role":"DONATOR"}`))
	})
	mux.HandleFunc("GET /donation", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"donation_id":1,"status":"PENDING","resource":{"name":"Water","quantity":3}}]`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// loopback is a chat broker delivering every message to every subscriber.
type loopback struct {
	mu       sync.Mutex
	handlers []func([]byte)
}

func (b *loopback) Publish(_ context.Context, _ string, data []byte) error {
	b.mu.Lock()
	hs := append(([]func([]byte))(nil), b.handlers...)
	b.mu.Unlock()
	for _, h := range hs {
		h(data)
	}
	return nil
}

func (b *loopback) Subscribe(_ string, h func([]byte)) (func() error, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
	return func() error { return nil }, nil
}

func testConfig(t *testing.T) config.Config {
	cfg := config.Default()
	cfg.BackendURL = reliefAPI(t).URL
	cfg.CookieSecret = "secret"
	cfg.CookieSecure = false
	cfg.AwaitProfile = 2 * time.Second
	return cfg
}

type client struct {
	engine *gin.Engine
	cookie *http.Cookie
}

func (c *client) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}

	w := httptest.NewRecorder()
	c.engine.ServeHTTP(w, req)

	for _, ck := range w.Result().Cookies() {
		if ck.Name == auth.DefaultCookieName {
			c.cookie = ck
		}
	}
	return w
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(context.Background(), config.Default())
	assert.Error(t, err)
}

func TestNew_UnreachableRedis(t *testing.T) {
	cfg := testConfig(t)
	cfg.RedisURL = "redis://127.0.0.1:1"

	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestInstance_LoginFlow(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.RedisURL = "redis://" + mr.Addr()

	reg := prometheus.NewRegistry()
	inst, err := New(context.Background(), cfg, WithRegistry(reg))
	require.NoError(t, err)
	t.Cleanup(func() { _ = inst.Close() })

	browser := &client{engine: inst.Gin}

	w := browser.do(http.MethodGet, "/donations?new=true", "")
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login?redirect=%2Fdonations%3Fnew%3Dtrue", w.Header().Get("Location"))
	require.NotNil(t, browser.cookie, "a client cookie is issued on first contact")

	w = browser.do(http.MethodPost, "/api/login", `{"email":"ann@example.com","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = browser.do(http.MethodPost, "/api/login", `{"email":"ann@example.com","password":"pw123456","redirect":"/donations?new=true"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"redirect":"/donations?new=true"`)

	w = browser.do(http.MethodGet, "/donations?new=true", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"new":true`)
	assert.Contains(t, w.Body.String(), `"Water"`)

	codec, err := auth.NewCodec("secret")
	require.NoError(t, err)
	id, ok := codec.Parse(browser.cookie.Value)
	require.True(t, ok)

	token, err := mr.Get("reliefboard:client:" + id.String() + ":auth.token")
	require.NoError(t, err)
	assert.Equal(t, "tok-7", token)

	// A restart over the same Redis restores the session.
	restarted, err := New(context.Background(), cfg, WithRegistry(prometheus.NewRegistry()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = restarted.Close() })

	again := &client{engine: restarted.Gin, cookie: browser.cookie}
	w = again.do(http.MethodGet, "/", "")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/donator_index", w.Header().Get("Location"))

	w = again.do(http.MethodPost, "/api/logout", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, mr.Exists("reliefboard:client:"+id.String()+":auth.token"))

	assert.Equal(t, float64(1), testutil.ToFloat64(inst.Metrics.GuardDecisions.WithLabelValues("render")))
	assert.Equal(t, float64(1), testutil.ToFloat64(inst.Metrics.GuardDecisions.WithLabelValues("redirect_login")))
	assert.Equal(t, float64(1), testutil.ToFloat64(inst.Metrics.SessionOperations.WithLabelValues("login", "error")))
}

func TestInstance_MetricsAndHealth(t *testing.T) {
	inst, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)

	browser := &client{engine: inst.Gin}

	w := browser.do(http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, browser.cookie, "health checks carry no client session")

	browser.do(http.MethodGet, "/about", "")

	w = browser.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "reliefboard_guard_decisions_total")
	assert.Contains(t, w.Body.String(), "reliefboard_session_stores 1")
	assert.NotEmpty(t, w.Header().Get("Content-Security-Policy"))
}

func TestInstance_CookieLifetime(t *testing.T) {
	cfg := testConfig(t)
	cfg.CookieLifetime = time.Hour

	inst, err := New(context.Background(), cfg)
	require.NoError(t, err)

	browser := &client{engine: inst.Gin}
	browser.do(http.MethodGet, "/about", "")

	require.NotNil(t, browser.cookie)
	assert.Equal(t, 3600, browser.cookie.MaxAge)
}

func TestInstance_Chat(t *testing.T) {
	inst, err := New(context.Background(), testConfig(t), WithBroker(&loopback{}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = inst.Close() })
	require.NotNil(t, inst.Chat)

	browser := &client{engine: inst.Gin}
	browser.do(http.MethodPost, "/api/login", `{"email":"ann@example.com","password":"pw123456"}`)

	w := browser.do(http.MethodPost, "/api/chat", `{"content":"trucks at the depot"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = browser.do(http.MethodGet, "/chat", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "trucks at the depot")
	assert.Equal(t, float64(1), testutil.ToFloat64(inst.Metrics.ChatMessages.WithLabelValues("in")))
}

func TestInstance_Hooks(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	record := func(name string) func(*Instance) {
		return func(*Instance) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, name)
		}
	}

	inst, err := New(context.Background(), testConfig(t), WithInitHook(record("init")))
	require.NoError(t, err)

	inst.Hook(hook.BeforeStart, record("before_start"))
	inst.Hook(hook.Start, record("start"))
	inst.Hook(hook.Shutdown, record("shutdown"))

	inst.Config.Addr = "127.0.0.1:0"
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- inst.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"init", "before_start", "start", "shutdown"}, seen)
}

func TestInstance_ErrorHandler(t *testing.T) {
	inst, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)

	var got error
	inst.ErrorHandler(func(err error) { got = err })
	inst.Gin.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := (&client{engine: inst.Gin}).do(http.MethodGet, "/boom", "")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Error(t, got)
}

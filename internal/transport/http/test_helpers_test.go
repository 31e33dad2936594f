package http

import (
	"bytes"
	"context"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wirenote/internal/auth"
	"github.com/vovakirdan/wirenote/internal/core"
	"github.com/vovakirdan/wirenote/internal/service/messages"
	"github.com/vovakirdan/wirenote/internal/service/notifications"
	"github.com/vovakirdan/wirenote/internal/service/users"
	"github.com/vovakirdan/wirenote/internal/store/sqlite"
)

type testEnv struct {
	ts    *httptest.Server
	store *sqlite.SQLiteStore
	hub   *core.Hub
}

// startTestServer wires the full stack on a temp database. tweak may set the
// limiter, guard or clock before the router is built.
func startTestServer(t *testing.T, tweak func(*Deps)) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zerolog.Nop()

	st, err := sqlite.New(filepath.Join(t.TempDir(), "http.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := core.NewHub(&logger)
	go hub.Run(ctx)

	engine := core.NewEngine(&logger)
	authSvc := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	})

	deps := Deps{
		Auth:          authSvc,
		Messages:      messages.New(st, engine, &logger, messages.WithNotifiers(hub)),
		Notifications: notifications.New(st),
		Users:         users.New(st, engine, nil, &logger, users.WithDisconnector(hub)),
		Hub:           hub,
	}
	if tweak != nil {
		tweak(&deps)
	}

	ts := httptest.NewServer(NewRouter(deps, &logger))
	t.Cleanup(ts.Close)
	return &testEnv{ts: ts, store: st, hub: hub}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *stdhttp.Response {
	t.Helper()
	return e.doWithHeaders(t, method, path, token, nil, body)
}

func (e *testEnv) doWithHeaders(t *testing.T, method, path, token string, headers map[string]string, body any) *stdhttp.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := stdhttp.NewRequest(method, e.ts.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := e.ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// register creates an account and returns its token and id.
func (e *testEnv) register(t *testing.T, username string) (string, int64) {
	t.Helper()
	resp := e.do(t, stdhttp.MethodPost, "/api/register", "", RegisterRequest{
		Username: username,
		Email:    username + "@example.com",
		Password: "secret123",
	})
	require.Equal(t, stdhttp.StatusCreated, resp.StatusCode)

	var out AuthResponse
	decode(t, resp, &out)
	require.NotEmpty(t, out.Token)
	require.NotNil(t, out.User)
	return out.Token, out.User.ID
}

func decode(t *testing.T, resp *stdhttp.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

// testClock is a settable clock shared between the test and the server goroutines.
type testClock struct {
	nanos atomic.Int64
}

func newTestClock(at time.Time) *testClock {
	c := &testClock{}
	c.Set(at)
	return c
}

func (c *testClock) Now() time.Time {
	return time.Unix(0, c.nanos.Load()).UTC()
}

func (c *testClock) Set(at time.Time) {
	c.nanos.Store(at.UnixNano())
}

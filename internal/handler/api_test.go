package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/codeagentswarm/swarm-backend/internal/blob"
	"github.com/codeagentswarm/swarm-backend/internal/config"
	"github.com/codeagentswarm/swarm-backend/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testNow = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

type testEnv struct {
	api    *API
	router chi.Router
	store  *store.SQLiteStore
	blobs  *blob.FileStore
	cfg    *config.Config
}

// newTestEnv wires an API over a temp database and blob root. mutate may
// adjust the config before anything is built from it.
func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	cfg, err := config.Parse(nil)
	require.NoError(t, err)
	cfg.Server.BaseURL = "http://localhost:3001"
	cfg.Storage.Path = t.TempDir()
	cfg.Blob.Root = t.TempDir()
	cfg.Blob.SigningSecret = "blob-secret"
	cfg.Reports.AppSecret = "app-secret"
	cfg.Auth.AccessSecret = "access-secret"
	cfg.Auth.RefreshSecret = "refresh-secret"
	cfg.Auth.Providers = nil
	for _, m := range mutate {
		m(cfg)
	}

	st, err := store.NewSQLiteStore(cfg.Storage.Path, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	blobs, err := blob.NewFileStore(cfg.Blob.Root, cfg.Server.BaseURL, cfg.Blob.SigningSecret)
	require.NoError(t, err)

	api := NewAPI(cfg, zap.NewNop(), st, blobs)
	api.now = func() time.Time { return testNow }
	t.Cleanup(api.Close)

	r := chi.NewRouter()
	api.RegisterRoutes(r)
	return &testEnv{api: api, router: r, store: st, blobs: blobs, cfg: cfg}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) get(path string) *httptest.ResponseRecorder {
	return e.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (e *testEnv) postJSON(path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return e.do(req)
}

func local(req *http.Request) *http.Request {
	req.RemoteAddr = "127.0.0.1:50000"
	return req
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}

func readAll(t *testing.T, r io.Reader) string {
	t.Helper()
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(b)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.get("/health")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	require.Equal(t, "ok", body["status"])
	require.Equal(t, "codeagentswarm-backend", body["service"])
	require.Equal(t, "2024-03-15T10:00:00.000Z", body["timestamp"])
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t)
	rec := env.get("/nope")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "Route not found", decode(t, rec)["error"])
}

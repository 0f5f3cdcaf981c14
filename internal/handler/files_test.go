package handler

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/codeagentswarm/swarm-backend/internal/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloads(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.blobs.Put(ctx, "releases", "darwin/arm64/CodeAgentSwarm-1.3.0.dmg", strings.NewReader("installer"))
	require.NoError(t, err)
	_, err = env.blobs.Put(ctx, "releases", "notes.txt", strings.NewReader("secret"))
	require.NoError(t, err)

	rec := env.get("/downloads/releases/darwin/arm64/CodeAgentSwarm-1.3.0.dmg")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "installer", rec.Body.String())
	assert.Equal(t, "application/x-apple-diskimage", rec.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	assert.Equal(t, http.StatusNotFound, env.get("/downloads/releases/notes.txt").Code)
	assert.Equal(t, http.StatusNotFound, env.get("/downloads/releases/darwin/").Code)
	assert.Equal(t, http.StatusNotFound, env.get("/downloads/logs/a.log").Code)
}

func TestSignedBlob(t *testing.T) {
	env := newTestEnv(t)
	key := "crash-reports/2024/3/crash_1.dmp"
	_, err := env.blobs.Put(context.Background(), "crash-reports", key, strings.NewReader("MDMP"))
	require.NoError(t, err)

	raw, err := env.blobs.SignedURL("crash-reports", key, time.Hour)
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)

	rec := env.get(u.RequestURI())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "MDMP", rec.Body.String())

	assert.Equal(t, http.StatusForbidden, env.get(u.Path).Code)
	assert.Equal(t, http.StatusForbidden, env.get("/blobs/crash-reports/other.dmp?"+u.RawQuery).Code)
}

func TestTicketBundle(t *testing.T) {
	env := newTestEnv(t)
	receipt, err := env.api.reports.SaveLog(context.Background(), report.LogSubmission{
		Content: []byte("bundle me"),
	})
	require.NoError(t, err)
	path := "/admin/tickets/" + receipt.SupportTicketID + "/bundle.zip"

	assert.Equal(t, http.StatusForbidden, env.get(path).Code)

	rec := env.do(local(httptest.NewRequest(http.MethodGet, path, nil)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))

	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)
	assert.Equal(t, "ticket.json", zr.File[0].Name)
	assert.True(t, strings.HasPrefix(zr.File[1].Name, receipt.SupportTicketID+"_"))

	f, err := zr.File[1].Open()
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, "bundle me", readAll(t, f))

	rec = env.do(local(httptest.NewRequest(http.MethodGet, "/admin/tickets/SUP-NOPE/bundle.zip", nil)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

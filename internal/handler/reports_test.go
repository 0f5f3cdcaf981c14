package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/codeagentswarm/swarm-backend/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func multipartRequest(t *testing.T, path string, fields map[string]string, fileField, fileName, fileContent string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileField != "" {
		fw, err := mw.CreateFormFile(fileField, fileName)
		require.NoError(t, err)
		_, err = fw.Write([]byte(fileContent))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestSubmitLogFile(t *testing.T) {
	env := newTestEnv(t)
	req := multipartRequest(t, "/api/logs/submit", map[string]string{
		"appVersion": "1.2.0",
		"platform":   "darwin",
		"arch":       "arm64",
		"metadata":   `{"locale":"en"}`,
	}, "logFile", "app.log", "hello log")

	rec := env.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	ticket := body["supportTicketId"].(string)
	assert.True(t, strings.HasPrefix(ticket, "SUP-"))
	assert.Len(t, ticket, 12)

	rec = env.get("/api/logs/ticket/" + ticket)
	require.Equal(t, http.StatusOK, rec.Code)
	entry := decode(t, rec)
	assert.Equal(t, "anonymous", entry["userId"])
	assert.Equal(t, "en", entry["metadata"].(map[string]any)["locale"])

	rc, err := env.blobs.Open(context.Background(), "logs", entry["logContent"].(string))
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, "hello log", readAll(t, rc))
}

func TestSubmitLogContentField(t *testing.T) {
	env := newTestEnv(t)
	form := url.Values{"logContent": {"plain log"}, "userId": {"u1"}}
	req := httptest.NewRequest(http.MethodPost, "/api/logs/submit", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := env.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Log saved successfully", decode(t, rec)["message"])
}

func TestSubmitLogRejects(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Reports.MaxUploadBytes = 1024 })

	rec := env.do(multipartRequest(t, "/api/logs/submit", map[string]string{"appVersion": "1.0.0"}, "", "", ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No log content provided", decode(t, rec)["error"])

	rec = env.do(multipartRequest(t, "/api/logs/submit", map[string]string{"metadata": "{bad"}, "logFile", "a.log", "x"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(multipartRequest(t, "/api/logs/submit", nil, "logFile", "a.log", strings.Repeat("x", 4096)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestGetLogTicketMissing(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, http.StatusNotFound, env.get("/api/logs/ticket/SUP-NOPE").Code)
}

func TestSubmitCrashReport(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(multipartRequest(t, "/api/crash-reports", map[string]string{
		"appVersion":   "1.2.0",
		"errorMessage": "segfault",
	}, "crashDump", "crash.dmp", "MDMP"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	id := decode(t, rec)["reportId"].(string)

	report, err := env.store.GetCrashReport(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, "segfault", report.ErrorMessage)
	assert.True(t, strings.HasPrefix(report.CrashDumpPath, "crash-reports/2"))

	// dump is optional
	rec = env.do(multipartRequest(t, "/api/crash-reports", map[string]string{"errorMessage": "hang"}, "", "", ""))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func signedErrorRequest(t *testing.T, secret, body string, ts int64) *http.Request {
	t.Helper()
	stamp := strconv.FormatInt(ts, 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(stamp + ":1.2.0:" + body))

	req := httptest.NewRequest(http.MethodPost, "/api/errors/report", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-App-Signature", hex.EncodeToString(mac.Sum(nil)))
	req.Header.Set("X-Timestamp", stamp)
	req.Header.Set("X-App-Version", "1.2.0")
	req.Header.Set("X-Platform", "darwin")
	return req
}

func TestSubmitErrorReport(t *testing.T) {
	env := newTestEnv(t)
	body := `{"error":{"message":"boom"},"level":"error","environment":"production"}`

	rec := env.do(signedErrorRequest(t, "app-secret", body, testNow.UnixMilli()))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decode(t, rec)["success"])

	n, err := env.store.CountErrorReports(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rec = env.do(signedErrorRequest(t, "app-secret", `{"level":"error"}`, testNow.UnixMilli()))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitErrorReportSignature(t *testing.T) {
	env := newTestEnv(t)
	body := `{"error":{"message":"boom"}}`

	tests := []struct {
		name string
		req  func() *http.Request
	}{
		{"wrong secret", func() *http.Request {
			return signedErrorRequest(t, "other", body, testNow.UnixMilli())
		}},
		{"stale timestamp", func() *http.Request {
			return signedErrorRequest(t, "app-secret", body, testNow.Add(-6*time.Minute).UnixMilli())
		}},
		{"missing headers", func() *http.Request {
			req := signedErrorRequest(t, "app-secret", body, testNow.UnixMilli())
			req.Header.Del("X-App-Version")
			return req
		}},
		{"tampered body", func() *http.Request {
			req := signedErrorRequest(t, "app-secret", body, testNow.UnixMilli())
			req.Body = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"error":{"message":"changed"}}`)).Body
			return req
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, http.StatusUnauthorized, env.do(tt.req()).Code)
		})
	}
}

func TestSubmitErrorReportNotConfigured(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Reports.AppSecret = "" })
	rec := env.do(signedErrorRequest(t, "", `{"error":{}}`, testNow.UnixMilli()))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSubmitErrorReportQuota(t *testing.T) {
	env := newTestEnv(t)
	body := `{"error":{"message":"boom"}}`

	for i := 0; i < 10; i++ {
		rec := env.do(signedErrorRequest(t, "app-secret", body, testNow.UnixMilli()))
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i)
	}
	rec := env.do(signedErrorRequest(t, "app-secret", body, testNow.UnixMilli()))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// another client has its own quota
	req := signedErrorRequest(t, "app-secret", body, testNow.UnixMilli())
	req.RemoteAddr = "198.51.100.7:4000"
	assert.Equal(t, http.StatusOK, env.do(req).Code)
}

func TestErrorsHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.get("/api/errors/health")
	require.Equal(t, http.StatusOK, rec.Code)
	limit := decode(t, rec)["rateLimit"].(map[string]any)
	assert.Equal(t, float64(60000), limit["window"])
	assert.Equal(t, float64(10), limit["maxRequests"])
}

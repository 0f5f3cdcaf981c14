package report

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/codeagentswarm/swarm-backend/internal/blob"
	"github.com/codeagentswarm/swarm-backend/internal/model"
	"github.com/codeagentswarm/swarm-backend/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type failingBlobs struct {
	blob.Store
}

func (failingBlobs) Put(context.Context, string, string, io.Reader) (int64, error) {
	return 0, errors.New("disk full")
}

// failingStore accepts blobs but refuses to record anything
type failingStore struct {
	Store
}

func (failingStore) SaveLog(context.Context, *model.LogEntry) error {
	return errors.New("database is locked")
}

func (failingStore) SaveCrashReport(context.Context, *model.CrashReport) error {
	return errors.New("database is locked")
}

func newTestService(t *testing.T) (*Service, *store.SQLiteStore, *blob.FileStore) {
	t.Helper()
	st, err := store.NewSQLiteStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	blobs, err := blob.NewFileStore(t.TempDir(), "http://localhost:3001", "secret")
	require.NoError(t, err)

	svc := NewService(st, blobs, Buckets{Logs: "logs", Crashes: "crash-reports"}, zap.NewNop())
	svc.now = func() time.Time { return time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC) }
	first := true
	svc.newID = func() string {
		if first {
			first = false
			return "a1b2c3d4-e5f6-4711-8899-aabbccddeeff"
		}
		return uuid.NewString()
	}
	return svc, st, blobs
}

func TestSaveLog(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	receipt, err := svc.SaveLog(ctx, LogSubmission{
		Client:   Client{AppVersion: "1.2.0", Platform: "darwin", Arch: "arm64"},
		Content:  []byte("line 1\nline 2\n"),
		Metadata: map[string]any{"locale": "en"},
	})
	require.NoError(t, err)
	assert.Equal(t, "SUP-A1B2C3D4", receipt.SupportTicketID)

	entry, err := svc.GetLog(ctx, receipt.SupportTicketID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "anonymous", entry.UserID)
	assert.Equal(t, "logs/2024/3/SUP-A1B2C3D4_1710496800000.log", entry.LogPath)
	assert.Equal(t, "en", entry.Metadata["locale"])

	rc, err := svc.OpenLog(ctx, entry)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "line 1\nline 2\n", string(data))
}

func TestSaveLogEmpty(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.SaveLog(context.Background(), LogSubmission{Content: []byte("  \n")})
	assert.ErrorIs(t, err, ErrEmptyLog)
}

func TestSaveLogUploadFailureRecordsNothing(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	svc.blobs = failingBlobs{}

	_, err := svc.SaveLog(ctx, LogSubmission{Content: []byte("x")})
	require.Error(t, err)

	entry, err := svc.GetLog(ctx, "SUP-A1B2C3D4")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestFailedInsertRemovesBlob(t *testing.T) {
	ctx := context.Background()

	t.Run("log", func(t *testing.T) {
		svc, st, blobs := newTestService(t)
		svc.store = failingStore{Store: st}

		_, err := svc.SaveLog(ctx, LogSubmission{Content: []byte("x")})
		require.Error(t, err)

		_, err = blobs.Open(ctx, "logs", "logs/2024/3/SUP-A1B2C3D4_1710496800000.log")
		assert.ErrorIs(t, err, blob.ErrNotFound)
	})

	t.Run("crash dump", func(t *testing.T) {
		svc, st, blobs := newTestService(t)
		svc.store = failingStore{Store: st}

		_, err := svc.SaveCrashReport(ctx, CrashSubmission{CrashDump: strings.NewReader("MDMP")})
		require.Error(t, err)

		_, err = blobs.Open(ctx, "crash-reports",
			"crash-reports/2024/3/crash_a1b2c3d4-e5f6-4711-8899-aabbccddeeff_1710496800000.dmp")
		assert.ErrorIs(t, err, blob.ErrNotFound)
	})
}

func TestBlobKeysUseUTC(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(t)
	// 01:00 on April 1st at UTC+2 is still March 31st in UTC
	svc.now = func() time.Time {
		return time.Date(2024, 4, 1, 1, 0, 0, 0, time.FixedZone("UTC+2", 2*60*60))
	}

	receipt, err := svc.SaveLog(ctx, LogSubmission{Content: []byte("x")})
	require.NoError(t, err)
	entry, err := svc.GetLog(ctx, receipt.SupportTicketID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "logs/2024/3/SUP-A1B2C3D4_1711926000000.log", entry.LogPath)
	assert.Equal(t, time.March, entry.CreatedAt.UTC().Month())

	crash, err := svc.SaveCrashReport(ctx, CrashSubmission{CrashDump: strings.NewReader("MDMP")})
	require.NoError(t, err)
	report, err := st.GetCrashReport(ctx, crash.ReportID)
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.True(t, strings.HasPrefix(report.CrashDumpPath, "crash-reports/2024/3/crash_"), report.CrashDumpPath)
}

func TestSaveCrashReport(t *testing.T) {
	ctx := context.Background()
	svc, st, blobs := newTestService(t)

	receipt, err := svc.SaveCrashReport(ctx, CrashSubmission{
		Client:       Client{UserID: "u1", AppVersion: "1.2.0", Platform: "win32", Arch: "x64"},
		CrashDump:    strings.NewReader("MDMP"),
		ErrorMessage: "segfault",
	})
	require.NoError(t, err)
	assert.Equal(t, "Crash report saved successfully", receipt.Message)

	report, err := st.GetCrashReport(ctx, receipt.ReportID)
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, "crash-reports/2024/3/crash_a1b2c3d4-e5f6-4711-8899-aabbccddeeff_1710496800000.dmp", report.CrashDumpPath)
	assert.Equal(t, "segfault", report.ErrorMessage)

	rc, err := blobs.Open(ctx, "crash-reports", report.CrashDumpPath)
	require.NoError(t, err)
	rc.Close()
}

func TestSaveCrashReportWithoutDump(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(t)

	receipt, err := svc.SaveCrashReport(ctx, CrashSubmission{ErrorMessage: "boom"})
	require.NoError(t, err)

	report, err := st.GetCrashReport(ctx, receipt.ReportID)
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Empty(t, report.CrashDumpPath)
	assert.Equal(t, "anonymous", report.UserID)
}

func TestSaveErrorReport(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(t)

	report, err := svc.SaveErrorReport(ctx, ErrorSubmission{
		Error:       map[string]any{"message": "TypeError: x is undefined"},
		Tags:        map[string]any{"component": "terminal"},
		User:        map[string]any{"id": "u1", "email": "dev@example.com"},
		Environment: "production",
		AppVersion:  "1.2.0",
		Platform:    "linux",
	})
	require.NoError(t, err)
	assert.Equal(t, "error", report.Level)
	assert.Equal(t, "TypeError: x is undefined", report.Message)
	assert.Equal(t, map[string]any{"id": "u1"}, report.Payload["user"])

	n, err := st.CountErrorReports(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSaveErrorReportFromDevMachine(t *testing.T) {
	svc, _, _ := newTestService(t)

	for _, sub := range []ErrorSubmission{
		{Error: map[string]any{"message": "a"}, Environment: "development"},
		{Error: map[string]any{"message": "b"}, Tags: map[string]any{"is_dev": true}},
	} {
		report, err := svc.SaveErrorReport(context.Background(), sub)
		require.NoError(t, err)
		assert.Equal(t, "warning", report.Level)
		tags := report.Payload["tags"].(map[string]any)
		assert.Equal(t, true, tags["is_development"])
		assert.Equal(t, "dev_machine", tags["source"])
	}

	// explicit levels other than error are kept
	report, err := svc.SaveErrorReport(context.Background(), ErrorSubmission{
		Error: map[string]any{"message": "c"}, Level: "fatal", Environment: "development",
	})
	require.NoError(t, err)
	assert.Equal(t, "fatal", report.Level)
}

func TestSaveErrorReportMissingError(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.SaveErrorReport(context.Background(), ErrorSubmission{Level: "error"})
	assert.ErrorIs(t, err, ErrMissingError)
}

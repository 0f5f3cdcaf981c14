package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/codeagentswarm/swarm-backend/internal/blob"
	"github.com/codeagentswarm/swarm-backend/internal/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrEmptyLog     = errors.New("no log content provided")
	ErrMissingError = errors.New("error data is required")
)

// Store persists report records
type Store interface {
	SaveLog(ctx context.Context, e *model.LogEntry) error
	GetLogByTicket(ctx context.Context, ticketID string) (*model.LogEntry, error)
	SaveCrashReport(ctx context.Context, c *model.CrashReport) error
	SaveErrorReport(ctx context.Context, r *model.ErrorReport) error
}

// Buckets names the blob buckets reports are written to
type Buckets struct {
	Logs    string
	Crashes string
}

// Service ingests logs, crash reports and error reports
type Service struct {
	store   Store
	blobs   blob.Store
	buckets Buckets
	logger  *zap.Logger
	now     func() time.Time
	newID   func() string
}

// NewService creates a new report Service
func NewService(store Store, blobs blob.Store, buckets Buckets, logger *zap.Logger) *Service {
	return &Service{
		store:   store,
		blobs:   blobs,
		buckets: buckets,
		logger:  logger,
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
	}
}

// Client identifies the app build a report came from
type Client struct {
	UserID     string
	AppVersion string
	Platform   string
	Arch       string
}

// LogSubmission is a client log upload
type LogSubmission struct {
	Client
	Content  []byte
	Metadata map[string]any
}

// LogReceipt is returned to the client after a log upload
type LogReceipt struct {
	SupportTicketID string `json:"supportTicketId"`
	Message         string `json:"message"`
}

// SaveLog stores the log content in blob storage under a fresh support
// ticket and records it. Nothing is recorded if the upload fails.
func (s *Service) SaveLog(ctx context.Context, sub LogSubmission) (*LogReceipt, error) {
	if len(bytes.TrimSpace(sub.Content)) == 0 {
		return nil, ErrEmptyLog
	}
	if sub.UserID == "" {
		sub.UserID = "anonymous"
	}

	now := s.now().UTC()
	ticket := "SUP-" + strings.ToUpper(strings.ReplaceAll(s.newID(), "-", "")[:8])
	key := fmt.Sprintf("logs/%d/%d/%s_%d.log", now.Year(), int(now.Month()), ticket, now.UnixMilli())

	if _, err := s.blobs.Put(ctx, s.buckets.Logs, key, bytes.NewReader(sub.Content)); err != nil {
		return nil, fmt.Errorf("failed to upload log: %w", err)
	}

	entry := &model.LogEntry{
		UserID:          sub.UserID,
		SupportTicketID: ticket,
		AppVersion:      sub.AppVersion,
		Platform:        sub.Platform,
		Arch:            sub.Arch,
		LogPath:         key,
		Metadata:        sub.Metadata,
		CreatedAt:       now,
	}
	if err := s.store.SaveLog(ctx, entry); err != nil {
		s.discard(ctx, s.buckets.Logs, key)
		return nil, err
	}

	s.logger.Info("log saved",
		zap.String("ticket", ticket),
		zap.String("app_version", sub.AppVersion),
		zap.String("platform", sub.Platform),
		zap.Int("bytes", len(sub.Content)),
	)
	return &LogReceipt{SupportTicketID: ticket, Message: "Log saved successfully"}, nil
}

// GetLog returns the log recorded under a support ticket, nil if missing
func (s *Service) GetLog(ctx context.Context, ticketID string) (*model.LogEntry, error) {
	return s.store.GetLogByTicket(ctx, ticketID)
}

// OpenLog returns the stored content of a log entry
func (s *Service) OpenLog(ctx context.Context, e *model.LogEntry) (io.ReadCloser, error) {
	return s.blobs.Open(ctx, s.buckets.Logs, e.LogPath)
}

// CrashSubmission is a client crash report with an optional minidump
type CrashSubmission struct {
	Client
	CrashDump    io.Reader
	ErrorMessage string
	StackTrace   string
	Metadata     map[string]any
}

// CrashReceipt is returned to the client after a crash report
type CrashReceipt struct {
	ReportID string `json:"reportId"`
	Message  string `json:"message"`
}

// SaveCrashReport uploads the dump, if any, then records the report
func (s *Service) SaveCrashReport(ctx context.Context, sub CrashSubmission) (*CrashReceipt, error) {
	if sub.UserID == "" {
		sub.UserID = "anonymous"
	}
	now := s.now().UTC()

	var dumpPath string
	if sub.CrashDump != nil {
		key := fmt.Sprintf("crash-reports/%d/%d/crash_%s_%d.dmp", now.Year(), int(now.Month()), s.newID(), now.UnixMilli())
		if _, err := s.blobs.Put(ctx, s.buckets.Crashes, key, sub.CrashDump); err != nil {
			return nil, fmt.Errorf("failed to upload crash dump: %w", err)
		}
		dumpPath = key
	}

	report := &model.CrashReport{
		ID:            s.newID(),
		UserID:        sub.UserID,
		AppVersion:    sub.AppVersion,
		Platform:      sub.Platform,
		Arch:          sub.Arch,
		CrashDumpPath: dumpPath,
		ErrorMessage:  sub.ErrorMessage,
		StackTrace:    sub.StackTrace,
		Metadata:      sub.Metadata,
		CreatedAt:     now,
	}
	if err := s.store.SaveCrashReport(ctx, report); err != nil {
		if dumpPath != "" {
			s.discard(ctx, s.buckets.Crashes, dumpPath)
		}
		return nil, err
	}

	s.logger.Info("crash report saved",
		zap.String("report_id", report.ID),
		zap.String("app_version", sub.AppVersion),
		zap.Bool("has_dump", dumpPath != ""),
	)
	return &CrashReceipt{ReportID: report.ID, Message: "Crash report saved successfully"}, nil
}

// ErrorSubmission mirrors the body of a desktop error report
type ErrorSubmission struct {
	Error       map[string]any   `json:"error"`
	Level       string           `json:"level"`
	Tags        map[string]any   `json:"tags"`
	Context     map[string]any   `json:"context"`
	User        map[string]any   `json:"user"`
	Breadcrumbs []map[string]any `json:"breadcrumbs"`
	Environment string           `json:"environment"`
	AppVersion  string           `json:"-"`
	Platform    string           `json:"-"`
}

// SaveErrorReport records an error report. Reports from development
// machines are demoted from error to warning and tagged as such.
func (s *Service) SaveErrorReport(ctx context.Context, sub ErrorSubmission) (*model.ErrorReport, error) {
	if len(sub.Error) == 0 {
		return nil, ErrMissingError
	}

	level := sub.Level
	if level == "" {
		level = "error"
	}
	tags := map[string]any{}
	for k, v := range sub.Tags {
		tags[k] = v
	}
	if sub.Environment == "development" || isTruthy(sub.Tags["is_dev"]) {
		tags["is_development"] = true
		tags["source"] = "dev_machine"
		if level == "error" {
			level = "warning"
		}
	}

	message, _ := sub.Error["message"].(string)
	if message == "" {
		message = fmt.Sprintf("%v", sub.Error)
	}

	// only the user id is kept
	var user map[string]any
	if id, ok := sub.User["id"]; ok {
		user = map[string]any{"id": id}
	}

	report := &model.ErrorReport{
		ID:          s.newID(),
		Level:       level,
		Message:     message,
		AppVersion:  sub.AppVersion,
		Platform:    sub.Platform,
		Environment: sub.Environment,
		Payload: map[string]any{
			"error":       sub.Error,
			"tags":        tags,
			"context":     sub.Context,
			"user":        user,
			"breadcrumbs": sub.Breadcrumbs,
		},
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.SaveErrorReport(ctx, report); err != nil {
		return nil, err
	}

	s.logger.Info("error report saved",
		zap.String("report_id", report.ID),
		zap.String("level", level),
		zap.String("app_version", sub.AppVersion),
		zap.String("platform", sub.Platform),
	)
	return report, nil
}

// discard removes a blob whose record could not be written
func (s *Service) discard(ctx context.Context, bucket, key string) {
	if err := s.blobs.Delete(ctx, bucket, key); err != nil {
		s.logger.Warn("failed to remove orphaned blob",
			zap.String("bucket", bucket),
			zap.String("key", key),
			zap.Error(err),
		)
	}
}

func isTruthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t == "true" || t == "1"
	case float64:
		return t != 0
	}
	return false
}

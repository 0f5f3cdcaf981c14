package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/codeagentswarm/swarm-backend/internal/model"
)

// SaveLog inserts a log entry record
func (s *SQLiteStore) SaveLog(ctx context.Context, e *model.LogEntry) error {
	metadata, err := encodeJSON(e.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode log metadata: %w", err)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}

	query := `
		INSERT INTO logs (user_id, support_ticket_id, app_version, platform, arch, log_path, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`
	err = s.db.QueryRowContext(ctx, query,
		e.UserID,
		e.SupportTicketID,
		e.AppVersion,
		e.Platform,
		e.Arch,
		e.LogPath,
		metadata,
		e.CreatedAt,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("failed to save log: %w", err)
	}
	return nil
}

// GetLogByTicket gets the log submitted under a support ticket, nil if missing
func (s *SQLiteStore) GetLogByTicket(ctx context.Context, ticketID string) (*model.LogEntry, error) {
	query := `SELECT id, user_id, support_ticket_id, app_version, platform, arch, log_path, metadata, created_at
		FROM logs WHERE support_ticket_id = ?`
	e := &model.LogEntry{}
	var metadata string
	err := s.db.QueryRowContext(ctx, query, ticketID).Scan(
		&e.ID,
		&e.UserID,
		&e.SupportTicketID,
		&e.AppVersion,
		&e.Platform,
		&e.Arch,
		&e.LogPath,
		&metadata,
		&e.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get log: %w", err)
	}
	e.Metadata = decodeJSON(metadata)
	return e, nil
}

// SaveCrashReport inserts a crash report record
func (s *SQLiteStore) SaveCrashReport(ctx context.Context, c *model.CrashReport) error {
	metadata, err := encodeJSON(c.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode crash metadata: %w", err)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}

	query := `
		INSERT INTO crash_reports (id, user_id, app_version, platform, arch, crash_dump_path,
			error_message, stack_trace, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		c.ID,
		c.UserID,
		c.AppVersion,
		c.Platform,
		c.Arch,
		c.CrashDumpPath,
		c.ErrorMessage,
		c.StackTrace,
		metadata,
		c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save crash report: %w", err)
	}
	return nil
}

// GetCrashReport gets a crash report by id, nil if missing
func (s *SQLiteStore) GetCrashReport(ctx context.Context, id string) (*model.CrashReport, error) {
	query := `SELECT id, user_id, app_version, platform, arch, crash_dump_path, error_message,
		stack_trace, metadata, created_at FROM crash_reports WHERE id = ?`
	c := &model.CrashReport{}
	var metadata string
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&c.ID,
		&c.UserID,
		&c.AppVersion,
		&c.Platform,
		&c.Arch,
		&c.CrashDumpPath,
		&c.ErrorMessage,
		&c.StackTrace,
		&metadata,
		&c.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get crash report: %w", err)
	}
	c.Metadata = decodeJSON(metadata)
	return c, nil
}

// SaveErrorReport inserts an error report record
func (s *SQLiteStore) SaveErrorReport(ctx context.Context, r *model.ErrorReport) error {
	payload, err := encodeJSON(r.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode error payload: %w", err)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}

	query := `
		INSERT INTO error_reports (id, level, message, app_version, platform, environment, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		r.ID,
		r.Level,
		r.Message,
		r.AppVersion,
		r.Platform,
		r.Environment,
		payload,
		r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save error report: %w", err)
	}
	return nil
}

// CountErrorReports returns how many error reports are stored
func (s *SQLiteStore) CountErrorReports(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM error_reports`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count error reports: %w", err)
	}
	return n, nil
}

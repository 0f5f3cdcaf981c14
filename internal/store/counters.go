package store

import (
	"context"
	"fmt"
	"time"
)

// Hit increments the fixed-window counter for key and returns the count in
// the current window. A window older than the given length starts over at 1.
// The counter lives in the database so every instance sharing it agrees.
func (s *SQLiteStore) Hit(ctx context.Context, key string, window time.Duration) (int, error) {
	now := s.now()
	cutoff := now.Add(-window)
	query := `
		INSERT INTO rate_counters (key, window_start, count) VALUES (?, ?, 1)
		ON CONFLICT(key) DO UPDATE SET
			count = CASE WHEN rate_counters.window_start <= ? THEN 1 ELSE rate_counters.count + 1 END,
			window_start = CASE WHEN rate_counters.window_start <= ? THEN excluded.window_start ELSE rate_counters.window_start END
		RETURNING count
	`
	var count int
	if err := s.db.QueryRowContext(ctx, query, key, now, cutoff, cutoff).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to hit counter: %w", err)
	}
	return count, nil
}

// DeleteStaleCounters drops counters whose window started before olderThan
func (s *SQLiteStore) DeleteStaleCounters(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rate_counters WHERE window_start <= ?`, s.now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale counters: %w", err)
	}
	return res.RowsAffected()
}

package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/codeagentswarm/swarm-backend/internal/model"
)

const changelogColumns = `id, version, previous_version, changelog, commit_count, created_at`

func scanChangelog(row scanner) (*model.Changelog, error) {
	c := &model.Changelog{}
	err := row.Scan(&c.ID, &c.Version, &c.PreviousVersion, &c.Changelog, &c.CommitCount, &c.CreatedAt)
	return c, err
}

// SaveChangelog inserts or replaces the changelog of a version
func (s *SQLiteStore) SaveChangelog(ctx context.Context, c *model.Changelog) error {
	c.CreatedAt = s.now()
	query := `
		INSERT INTO changelogs (version, previous_version, changelog, commit_count, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(version) DO UPDATE SET
			previous_version = excluded.previous_version,
			changelog = excluded.changelog,
			commit_count = excluded.commit_count,
			created_at = excluded.created_at
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query,
		c.Version,
		c.PreviousVersion,
		c.Changelog,
		c.CommitCount,
		c.CreatedAt,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("failed to save changelog: %w", err)
	}
	return nil
}

// GetChangelog gets the changelog of a version, nil if missing
func (s *SQLiteStore) GetChangelog(ctx context.Context, version string) (*model.Changelog, error) {
	query := `SELECT ` + changelogColumns + ` FROM changelogs WHERE version = ?`
	c, err := scanChangelog(s.db.QueryRowContext(ctx, query, version))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get changelog: %w", err)
	}
	return c, nil
}

// ListChangelogs pages through changelogs, newest first. A limit <= 0 returns all.
func (s *SQLiteStore) ListChangelogs(ctx context.Context, limit, offset int) ([]*model.Changelog, error) {
	query := `SELECT ` + changelogColumns + ` FROM changelogs ORDER BY created_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query changelogs: %w", err)
	}
	defer rows.Close()

	changelogs := []*model.Changelog{}
	for rows.Next() {
		c, err := scanChangelog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan changelog: %w", err)
		}
		changelogs = append(changelogs, c)
	}
	return changelogs, rows.Err()
}

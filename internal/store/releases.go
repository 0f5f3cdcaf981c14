package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/codeagentswarm/swarm-backend/internal/model"
)

const releaseColumns = `id, version, platform, arch, file_name, file_url, file_size, sha512,
	release_notes, is_prerelease, is_active, created_at, updated_at`

func scanRelease(row scanner) (*model.Release, error) {
	r := &model.Release{}
	err := row.Scan(
		&r.ID,
		&r.Version,
		&r.Platform,
		&r.Arch,
		&r.FileName,
		&r.FileURL,
		&r.FileSize,
		&r.SHA512,
		&r.ReleaseNotes,
		&r.IsPrerelease,
		&r.IsActive,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	return r, err
}

// GetLatestRelease returns the newest active, non-prerelease release for a
// platform/arch pair, or nil if there is none.
func (s *SQLiteStore) GetLatestRelease(ctx context.Context, platform, arch string) (*model.Release, error) {
	query := `SELECT ` + releaseColumns + ` FROM releases
		WHERE platform = ? AND arch = ? AND is_active = 1 AND is_prerelease = 0
		ORDER BY created_at DESC, id DESC LIMIT 1`
	r, err := scanRelease(s.db.QueryRowContext(ctx, query, platform, arch))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest release: %w", err)
	}
	return r, nil
}

// CreateRelease inserts a release and fills its id and timestamps
func (s *SQLiteStore) CreateRelease(ctx context.Context, r *model.Release) error {
	if r.FileSize < 0 {
		return fmt.Errorf("failed to create release: negative file size %d", r.FileSize)
	}
	now := s.now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	query := `
		INSERT INTO releases (version, platform, arch, file_name, file_url, file_size, sha512,
			release_notes, is_prerelease, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query,
		r.Version,
		r.Platform,
		r.Arch,
		r.FileName,
		r.FileURL,
		r.FileSize,
		r.SHA512,
		r.ReleaseNotes,
		boolToInt(r.IsPrerelease),
		boolToInt(r.IsActive),
		r.CreatedAt.UTC(),
		r.UpdatedAt,
	).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("failed to create release: %w", err)
	}
	return nil
}

// GetRelease gets a release by id, nil if missing
func (s *SQLiteStore) GetRelease(ctx context.Context, id int64) (*model.Release, error) {
	query := `SELECT ` + releaseColumns + ` FROM releases WHERE id = ?`
	r, err := scanRelease(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get release: %w", err)
	}
	return r, nil
}

// ListReleases returns all releases, newest first
func (s *SQLiteStore) ListReleases(ctx context.Context) ([]*model.Release, error) {
	query := `SELECT ` + releaseColumns + ` FROM releases ORDER BY created_at DESC, id DESC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query releases: %w", err)
	}
	defer rows.Close()

	var releases []*model.Release
	for rows.Next() {
		r, err := scanRelease(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan release: %w", err)
		}
		releases = append(releases, r)
	}
	return releases, rows.Err()
}

// SetReleaseActive toggles whether a release can be served as an update
func (s *SQLiteStore) SetReleaseActive(ctx context.Context, id int64, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE releases SET is_active = ?, updated_at = ? WHERE id = ?`,
		boolToInt(active), s.now(), id)
	if err != nil {
		return fmt.Errorf("failed to update release: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update release: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("release not found: %d", id)
	}
	return nil
}

// DeleteRelease removes a release record
func (s *SQLiteStore) DeleteRelease(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM releases WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete release: %w", err)
	}
	return nil
}

package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/codeagentswarm/swarm-backend/internal/model"
)

const userColumns = `id, email, name, username, avatar_url, provider, provider_id, last_login, created_at`

func scanUser(row scanner) (*model.User, error) {
	u := &model.User{}
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&u.Username,
		&u.AvatarURL,
		&u.Provider,
		&u.ProviderID,
		&u.LastLogin,
		&u.CreatedAt,
	)
	return u, err
}

func (s *SQLiteStore) getUser(ctx context.Context, where string, args ...any) (*model.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// GetUser gets a user by id, nil if missing
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	return s.getUser(ctx, `id = ?`, id)
}

// GetUserByProvider gets a user by OAuth identity, nil if missing
func (s *SQLiteStore) GetUserByProvider(ctx context.Context, provider, providerID string) (*model.User, error) {
	return s.getUser(ctx, `provider = ? AND provider_id = ?`, provider, providerID)
}

// GetUserByEmail gets the oldest user with an email, nil if missing
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	if email == "" {
		return nil, nil
	}
	return s.getUser(ctx, `email = ? ORDER BY created_at LIMIT 1`, email)
}

// CreateUser inserts a user
func (s *SQLiteStore) CreateUser(ctx context.Context, u *model.User) error {
	now := s.now()
	u.CreatedAt = now
	u.LastLogin = now
	query := `
		INSERT INTO users (id, email, name, username, avatar_url, provider, provider_id, last_login, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		u.ID, u.Email, u.Name, u.Username, u.AvatarURL, u.Provider, u.ProviderID, u.LastLogin, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// TouchUserLogin records a login and refreshes the profile fields
func (s *SQLiteStore) TouchUserLogin(ctx context.Context, u *model.User) error {
	u.LastLogin = s.now()
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET last_login = ?, name = ?, avatar_url = ? WHERE id = ?`,
		u.LastLogin, u.Name, u.AvatarURL, u.ID)
	if err != nil {
		return fmt.Errorf("failed to update user login: %w", err)
	}
	return nil
}

// CreateSession inserts a session
func (s *SQLiteStore) CreateSession(ctx context.Context, sess *model.Session) error {
	deviceInfo, err := encodeJSON(sess.DeviceInfo)
	if err != nil {
		return fmt.Errorf("failed to encode device info: %w", err)
	}
	sess.CreatedAt = s.now()
	query := `
		INSERT INTO sessions (id, user_id, refresh_token_hash, device_info, ip_address, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		sess.ID, sess.UserID, sess.RefreshTokenHash, deviceInfo, sess.IPAddress, sess.ExpiresAt.UTC(), sess.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSession gets a session by id if it has not expired, nil otherwise
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	query := `SELECT id, user_id, refresh_token_hash, device_info, ip_address, expires_at, created_at
		FROM sessions WHERE id = ?`
	sess := &model.Session{}
	var deviceInfo string
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&sess.ID,
		&sess.UserID,
		&sess.RefreshTokenHash,
		&deviceInfo,
		&sess.IPAddress,
		&sess.ExpiresAt,
		&sess.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if !sess.ExpiresAt.After(s.now()) {
		return nil, nil
	}
	sess.DeviceInfo = decodeJSON(deviceInfo)
	return sess, nil
}

// DeleteSession removes a session; deleting a missing session is not an error
func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes sessions that expired before now
func (s *SQLiteStore) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}

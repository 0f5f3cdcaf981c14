package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/codeagentswarm/swarm-backend/internal/config"
	"github.com/codeagentswarm/swarm-backend/internal/model"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

var (
	ErrDisabled          = errors.New("authentication is not configured")
	ErrUnknownProvider   = errors.New("invalid provider")
	ErrProviderDisabled  = errors.New("provider is not configured")
	ErrInvalidState      = errors.New("invalid oauth state")
	ErrInvalidToken      = errors.New("invalid token")
	ErrTokenExpired      = errors.New("token expired")
	ErrInvalidRefresh    = errors.New("invalid refresh token")
	ErrProfileIncomplete = errors.New("provider returned no user id")
)

// Store persists users and sessions
type Store interface {
	GetUser(ctx context.Context, id string) (*model.User, error)
	GetUserByProvider(ctx context.Context, provider, providerID string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	CreateUser(ctx context.Context, u *model.User) error
	TouchUserLogin(ctx context.Context, u *model.User) error
	CreateSession(ctx context.Context, sess *model.Session) error
	GetSession(ctx context.Context, id string) (*model.Session, error)
	DeleteSession(ctx context.Context, id string) error
}

// Service runs the OAuth login flow and manages sessions
type Service struct {
	cfg       config.Auth
	store     Store
	providers map[string]*provider
	client    *http.Client
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates a new auth Service. Providers without a client id are
// left out; baseURL is where the provider redirects back to.
func NewService(cfg config.Auth, baseURL string, store Store, logger *zap.Logger) *Service {
	s := &Service{
		cfg:       cfg,
		store:     store,
		providers: make(map[string]*provider),
		client:    &http.Client{Timeout: 15 * time.Second},
		logger:    logger,
		now:       time.Now,
	}
	base := strings.TrimRight(baseURL, "/")
	for name, pc := range cfg.Providers {
		if p, ok := newProvider(name, pc, base+"/api/auth/callback/"+name); ok {
			s.providers[name] = p
		}
	}
	return s
}

// Enabled reports whether tokens can be signed
func (s *Service) Enabled() bool {
	return s.cfg.AccessSecret != "" && s.cfg.RefreshSecret != ""
}

// Providers lists the configured provider names
func (s *Service) Providers() []string {
	names := make([]string, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Service) provider(name string) (*provider, error) {
	if !s.Enabled() {
		return nil, ErrDisabled
	}
	if _, ok := knownProviders[name]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	p, ok := s.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderDisabled, name)
	}
	return p, nil
}

// LoginURL returns the provider authorization URL carrying a signed state
func (s *Service) LoginURL(providerName string) (string, error) {
	p, err := s.provider(providerName)
	if err != nil {
		return "", err
	}
	state, err := s.newState(providerName)
	if err != nil {
		return "", err
	}
	return p.oauth.AuthCodeURL(state), nil
}

// ClientInfo describes the device completing a login
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

// LoginResult is handed back to the desktop app after a successful login
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	User         *model.User
}

// DeepLink is the app URL that delivers the tokens to the desktop client
func (r *LoginResult) DeepLink(scheme string) string {
	user, _ := json.Marshal(map[string]string{
		"id":         r.User.ID,
		"email":      r.User.Email,
		"name":       r.User.Name,
		"avatar_url": r.User.AvatarURL,
	})
	return scheme + "://auth?token=" + url.QueryEscape(r.AccessToken) +
		"&refresh=" + url.QueryEscape(r.RefreshToken) +
		"&user=" + url.QueryEscape(string(user))
}

// Callback completes the OAuth flow: exchanges the code, resolves the
// account and opens a session.
func (s *Service) Callback(ctx context.Context, providerName, code, state string, info ClientInfo) (*LoginResult, error) {
	p, err := s.provider(providerName)
	if err != nil {
		return nil, err
	}
	if err := s.checkState(state, providerName); err != nil {
		return nil, err
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.client)
	tok, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}
	profile, err := p.fetch(ctx, p.oauth.Client(ctx, tok), p)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s profile: %w", providerName, err)
	}

	user, err := s.FindOrCreateUser(ctx, providerName, profile)
	if err != nil {
		return nil, err
	}
	result, err := s.openSession(ctx, user, info)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user logged in",
		zap.String("user_id", user.ID),
		zap.String("provider", providerName),
	)
	return result, nil
}

// FindOrCreateUser resolves a provider identity to an account. Known
// identities get their login time and profile refreshed; an unknown
// identity whose verified email matches an account is linked to it.
// Unverified addresses are never stored, so they cannot be linked to later.
func (s *Service) FindOrCreateUser(ctx context.Context, providerName string, profile *Profile) (*model.User, error) {
	if profile.ID == "" {
		return nil, ErrProfileIncomplete
	}

	user, err := s.store.GetUserByProvider(ctx, providerName, profile.ID)
	if err != nil {
		return nil, err
	}
	if user != nil {
		if profile.Name != "" {
			user.Name = profile.Name
		}
		if profile.AvatarURL != "" {
			user.AvatarURL = profile.AvatarURL
		}
		if err := s.store.TouchUserLogin(ctx, user); err != nil {
			return nil, err
		}
		return user, nil
	}

	// only an address the provider verified may sign into an existing account
	if profile.Verified {
		user, err = s.store.GetUserByEmail(ctx, profile.Email)
		if err != nil {
			return nil, err
		}
	}
	if user != nil {
		s.logger.Info("linking provider to existing account",
			zap.String("user_id", user.ID),
			zap.String("provider", providerName),
		)
		return user, nil
	}

	email := ""
	if profile.Verified {
		email = profile.Email
	}
	user = &model.User{
		ID:         uuid.NewString(),
		Email:      email,
		Name:       profile.displayName(),
		Username:   profile.Username,
		AvatarURL:  profile.AvatarURL,
		Provider:   providerName,
		ProviderID: profile.ID,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) openSession(ctx context.Context, user *model.User, info ClientInfo) (*LoginResult, error) {
	sid := uuid.NewString()
	expires := s.now().Add(s.cfg.RefreshTTL)

	access, err := s.signAccess(user, sid)
	if err != nil {
		return nil, err
	}
	refresh, err := s.signRefresh(user.ID, sid, expires)
	if err != nil {
		return nil, err
	}

	sess := &model.Session{
		ID:               sid,
		UserID:           user.ID,
		RefreshTokenHash: hashToken(refresh),
		DeviceInfo:       map[string]any{"user_agent": info.UserAgent},
		IPAddress:        info.IPAddress,
		ExpiresAt:        expires,
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	return &LoginResult{AccessToken: access, RefreshToken: refresh, User: user}, nil
}

// Validate checks an access token and that its session is still open
func (s *Service) Validate(ctx context.Context, token string) (*AccessClaims, error) {
	if !s.Enabled() {
		return nil, ErrDisabled
	}
	claims, err := s.parseAccess(token)
	if err != nil {
		return nil, err
	}
	sess, err := s.store.GetSession(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil || sess.UserID != claims.UserID {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Refresh issues a new access token for the session behind a refresh token
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, *model.User, error) {
	if !s.Enabled() {
		return "", nil, ErrDisabled
	}
	claims, err := s.parseRefresh(refreshToken)
	if err != nil {
		return "", nil, err
	}
	sess, err := s.store.GetSession(ctx, claims.SessionID)
	if err != nil {
		return "", nil, err
	}
	if sess == nil || !s.now().Before(sess.ExpiresAt) ||
		subtle.ConstantTimeCompare([]byte(sess.RefreshTokenHash), []byte(hashToken(refreshToken))) != 1 {
		return "", nil, ErrInvalidRefresh
	}
	user, err := s.store.GetUser(ctx, sess.UserID)
	if err != nil {
		return "", nil, err
	}
	if user == nil {
		return "", nil, ErrInvalidRefresh
	}
	access, err := s.signAccess(user, sess.ID)
	if err != nil {
		return "", nil, err
	}
	return access, user, nil
}

// Logout closes the session of an access token. Expired tokens are
// accepted so a client can always sign out.
func (s *Service) Logout(ctx context.Context, token string) error {
	if !s.Enabled() {
		return ErrDisabled
	}
	claims, err := s.parseAccess(token, jwt.WithoutClaimsValidation())
	if err != nil {
		return err
	}
	if err := s.store.DeleteSession(ctx, claims.SessionID); err != nil {
		return err
	}
	s.logger.Info("user logged out", zap.String("user_id", claims.UserID))
	return nil
}

package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/codeagentswarm/swarm-backend/internal/config"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

// Profile is the identity returned by an OAuth provider
type Profile struct {
	ID        string
	Email     string
	Verified  bool // the provider confirmed Email belongs to the account
	Name      string
	Username  string
	AvatarURL string
}

type fetchFunc func(ctx context.Context, client *http.Client, p *provider) (*Profile, error)

type provider struct {
	name        string
	oauth       *oauth2.Config
	userInfoURL string
	emailsURL   string
	fetch       fetchFunc
}

type providerDefaults struct {
	endpoint    oauth2.Endpoint
	scopes      []string
	userInfoURL string
	emailsURL   string
	fetch       fetchFunc
}

var knownProviders = map[string]providerDefaults{
	"github": {
		endpoint:    endpoints.GitHub,
		scopes:      []string{"user:email", "read:user"},
		userInfoURL: "https://api.github.com/user",
		emailsURL:   "https://api.github.com/user/emails",
		fetch:       fetchGitHub,
	},
	"google": {
		endpoint:    endpoints.Google,
		scopes:      []string{"email", "profile"},
		userInfoURL: "https://www.googleapis.com/oauth2/v2/userinfo",
		fetch:       fetchGoogle,
	},
	"discord": {
		endpoint: oauth2.Endpoint{
			AuthURL:   "https://discord.com/api/oauth2/authorize",
			TokenURL:  "https://discord.com/api/oauth2/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		scopes:      []string{"identify", "email"},
		userInfoURL: "https://discord.com/api/users/@me",
		fetch:       fetchDiscord,
	},
}

// newProvider builds a provider from its defaults and the configured
// credentials; endpoint URLs set in cfg replace the public ones.
func newProvider(name string, cfg config.Provider, redirectURL string) (*provider, bool) {
	def, ok := knownProviders[name]
	if !ok || cfg.ClientID == "" {
		return nil, false
	}
	endpoint := def.endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	p := &provider{
		name: name,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  redirectURL,
			Scopes:       def.scopes,
		},
		userInfoURL: def.userInfoURL,
		emailsURL:   def.emailsURL,
		fetch:       def.fetch,
	}
	if cfg.UserInfoURL != "" {
		p.userInfoURL = cfg.UserInfoURL
	}
	if cfg.EmailsURL != "" {
		p.emailsURL = cfg.EmailsURL
	}
	return p, true
}

func getJSON(ctx context.Context, client *http.Client, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to fetch %s: status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", url, err)
	}
	return nil
}

func fetchGitHub(ctx context.Context, client *http.Client, p *provider) (*Profile, error) {
	var user struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := getJSON(ctx, client, p.userInfoURL, &user); err != nil {
		return nil, err
	}

	// GitHub only lets verified addresses be public
	verified := user.Email != ""

	// private addresses only show up in the emails listing
	if user.Email == "" && p.emailsURL != "" {
		var emails []struct {
			Email    string `json:"email"`
			Primary  bool   `json:"primary"`
			Verified bool   `json:"verified"`
		}
		if err := getJSON(ctx, client, p.emailsURL, &emails); err != nil {
			return nil, err
		}
		for _, e := range emails {
			if e.Primary {
				user.Email = e.Email
				verified = e.Verified
				break
			}
		}
	}

	return &Profile{
		ID:        strconv.FormatInt(user.ID, 10),
		Email:     user.Email,
		Verified:  verified,
		Name:      user.Name,
		Username:  user.Login,
		AvatarURL: user.AvatarURL,
	}, nil
}

func fetchGoogle(ctx context.Context, client *http.Client, p *provider) (*Profile, error) {
	var user struct {
		ID            string `json:"id"`
		Email         string `json:"email"`
		VerifiedEmail bool   `json:"verified_email"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := getJSON(ctx, client, p.userInfoURL, &user); err != nil {
		return nil, err
	}
	return &Profile{
		ID:        user.ID,
		Email:     user.Email,
		Verified:  user.VerifiedEmail,
		Name:      user.Name,
		AvatarURL: user.Picture,
	}, nil
}

func fetchDiscord(ctx context.Context, client *http.Client, p *provider) (*Profile, error) {
	var user struct {
		ID         string `json:"id"`
		Username   string `json:"username"`
		GlobalName string `json:"global_name"`
		Email      string `json:"email"`
		Verified   bool   `json:"verified"`
		Avatar     string `json:"avatar"`
	}
	if err := getJSON(ctx, client, p.userInfoURL, &user); err != nil {
		return nil, err
	}
	profile := &Profile{
		ID:       user.ID,
		Email:    user.Email,
		Verified: user.Verified,
		Name:     user.GlobalName,
		Username: user.Username,
	}
	if user.Avatar != "" {
		profile.AvatarURL = fmt.Sprintf("https://cdn.discordapp.com/avatars/%s/%s.png", user.ID, user.Avatar)
	}
	return profile, nil
}

// displayName picks the best available name for a new account
func (p *Profile) displayName() string {
	switch {
	case p.Name != "":
		return p.Name
	case p.Username != "":
		return p.Username
	}
	local, _, _ := strings.Cut(p.Email, "@")
	return local
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    Server    `yaml:"server"`
	Storage   Storage   `yaml:"storage"`
	Blob      Blob      `yaml:"blob"`
	Update    Update    `yaml:"update"`
	Reports   Reports   `yaml:"reports"`
	Auth      Auth      `yaml:"auth"`
	CORS      CORS      `yaml:"cors"`
	RateLimit RateLimit `yaml:"rate_limit"`
	Sweep     Sweep     `yaml:"sweep"`
	Log       Log       `yaml:"log"`
}

type Server struct {
	Port    int    `yaml:"port"`
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	BaseURL string `yaml:"base_url"` // public URL of this service
}

type Storage struct {
	Path string `yaml:"path"` // holds the sqlite database
}

type Blob struct {
	Root          string        `yaml:"root"`
	ReleaseBucket string        `yaml:"release_bucket"`
	LogBucket     string        `yaml:"log_bucket"`
	CrashBucket   string        `yaml:"crash_bucket"`
	SigningSecret string        `yaml:"signing_secret"`
	SignedURLTTL  time.Duration `yaml:"signed_url_ttl"`
}

type Update struct {
	DefaultPlatform string `yaml:"default_platform"`
	DefaultArch     string `yaml:"default_arch"`
}

type Reports struct {
	AppSecret       string        `yaml:"app_secret"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
	SignatureMaxAge time.Duration `yaml:"signature_max_age"`
	ErrorWindow     time.Duration `yaml:"error_window"`
	ErrorMax        int           `yaml:"error_max"`
}

type Auth struct {
	AccessSecret   string              `yaml:"access_secret"`
	RefreshSecret  string              `yaml:"refresh_secret"`
	AccessTTL      time.Duration       `yaml:"access_ttl"`
	RefreshTTL     time.Duration       `yaml:"refresh_ttl"`
	Issuer         string              `yaml:"issuer"`
	Audience       string              `yaml:"audience"`
	DeepLinkScheme string              `yaml:"deep_link_scheme"`
	Providers      map[string]Provider `yaml:"providers"`
}

type Provider struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	// Endpoint overrides, empty means the provider's public endpoints.
	AuthURL     string `yaml:"auth_url"`
	TokenURL    string `yaml:"token_url"`
	UserInfoURL string `yaml:"user_info_url"`
	EmailsURL   string `yaml:"emails_url"`
}

type CORS struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type RateLimit struct {
	UploadRPS   int `yaml:"upload_rps"`
	UploadBurst int `yaml:"upload_burst"`
}

type Sweep struct {
	Interval time.Duration `yaml:"interval"`
}

type Log struct {
	Level      string `yaml:"level"`       // debug, info, warn, error
	Filename   string `yaml:"filename"`    // log file path, empty for stdout only
	MaxSize    int    `yaml:"max_size"`    // megabytes
	MaxBackups int    `yaml:"max_backups"` // number of backups
	MaxAge     int    `yaml:"max_age"`     // days
	Compress   bool   `yaml:"compress"`    // compress rotated files
}

var (
	config  *Config
	loadErr error
	once    sync.Once
)

// Load loads the configuration from the default config file
func Load() (*Config, error) {
	return LoadFromFile("config/config.yaml")
}

// LoadFromFile loads the configuration from the specified file once and
// caches it for Get. A missing file yields the defaults.
func LoadFromFile(path string) (*Config, error) {
	once.Do(func() {
		// .env never overrides variables already present in the environment
		_ = godotenv.Load()

		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			loadErr = fmt.Errorf("failed to read config: %w", err)
			return
		}
		config, loadErr = Parse(data)
		if loadErr != nil {
			return
		}
		loadErr = ensureDirs(config)
	})
	return config, loadErr
}

// Get returns the current configuration
func Get() *Config {
	return config
}

// Parse decodes YAML, overlays environment secrets and fills defaults.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	applyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setFromEnv(&cfg.Auth.AccessSecret, "JWT_ACCESS_SECRET", "JWT_SECRET")
	setFromEnv(&cfg.Auth.RefreshSecret, "JWT_REFRESH_SECRET", "JWT_SECRET")
	setFromEnv(&cfg.Reports.AppSecret, "APP_SECRET")
	setFromEnv(&cfg.Blob.SigningSecret, "BLOB_SIGNING_SECRET")
	setFromEnv(&cfg.Server.BaseURL, "BACKEND_URL")

	for _, name := range []string{"github", "google", "discord"} {
		p := cfg.Auth.Providers[name]
		prefix := map[string]string{"github": "GITHUB", "google": "GOOGLE", "discord": "DISCORD"}[name]
		setFromEnv(&p.ClientID, prefix+"_CLIENT_ID")
		setFromEnv(&p.ClientSecret, prefix+"_CLIENT_SECRET")
		if p.ClientID == "" {
			continue
		}
		if cfg.Auth.Providers == nil {
			cfg.Auth.Providers = make(map[string]Provider)
		}
		cfg.Auth.Providers[name] = p
	}
}

// setFromEnv takes the first non-empty variable among keys.
func setFromEnv(dst *string, keys ...string) {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			*dst = v
			return
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3001
	}
	if cfg.Server.Name == "" {
		cfg.Server.Name = "codeagentswarm-backend"
	}
	if cfg.Server.Version == "" {
		cfg.Server.Version = "1.0.0"
	}
	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "data"
	}
	if cfg.Blob.Root == "" {
		cfg.Blob.Root = filepath.Join(cfg.Storage.Path, "blobs")
	}
	if cfg.Blob.ReleaseBucket == "" {
		cfg.Blob.ReleaseBucket = "releases"
	}
	if cfg.Blob.LogBucket == "" {
		cfg.Blob.LogBucket = "logs"
	}
	if cfg.Blob.CrashBucket == "" {
		cfg.Blob.CrashBucket = "crash-reports"
	}
	if cfg.Blob.SignedURLTTL == 0 {
		cfg.Blob.SignedURLTTL = time.Hour
	}
	if cfg.Update.DefaultArch == "" {
		cfg.Update.DefaultArch = "x64"
	}
	if cfg.Reports.MaxUploadBytes == 0 {
		cfg.Reports.MaxUploadBytes = 10 << 20
	}
	if cfg.Reports.SignatureMaxAge == 0 {
		cfg.Reports.SignatureMaxAge = 5 * time.Minute
	}
	if cfg.Reports.ErrorWindow == 0 {
		cfg.Reports.ErrorWindow = time.Minute
	}
	if cfg.Reports.ErrorMax == 0 {
		cfg.Reports.ErrorMax = 10
	}
	if cfg.Auth.AccessTTL == 0 {
		cfg.Auth.AccessTTL = 15 * time.Minute
	}
	if cfg.Auth.RefreshTTL == 0 {
		cfg.Auth.RefreshTTL = 30 * 24 * time.Hour
	}
	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = "codeagentswarm"
	}
	if cfg.Auth.Audience == "" {
		cfg.Auth.Audience = "codeagentswarm-desktop"
	}
	if cfg.Auth.DeepLinkScheme == "" {
		cfg.Auth.DeepLinkScheme = "codeagentswarm"
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		cfg.CORS.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:3001"}
	}
	if cfg.RateLimit.UploadRPS == 0 {
		cfg.RateLimit.UploadRPS = 20
	}
	if cfg.RateLimit.UploadBurst == 0 {
		cfg.RateLimit.UploadBurst = 40
	}
	if cfg.Sweep.Interval == 0 {
		cfg.Sweep.Interval = 10 * time.Minute
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// ensureDirs creates necessary directories if they don't exist
func ensureDirs(cfg *Config) error {
	dirs := []string{cfg.Storage.Path, cfg.Blob.Root}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

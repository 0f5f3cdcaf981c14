package model

import (
	"time"
)

// Release represents a published desktop build for one platform/arch pair
type Release struct {
	ID           int64     `json:"id"`
	Version      string    `json:"version"`
	Platform     string    `json:"platform"`
	Arch         string    `json:"arch"`
	FileName     string    `json:"fileName"`
	FileURL      string    `json:"fileUrl"`
	FileSize     int64     `json:"fileSize"`
	SHA512       string    `json:"sha512"`
	ReleaseNotes string    `json:"releaseNotes"`
	IsPrerelease bool      `json:"isPrerelease"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// UpdateFile is a single downloadable asset of an update
type UpdateFile struct {
	URL    string `json:"url"`
	SHA512 string `json:"sha512"`
	Size   int64  `json:"size"`
}

// UpdateDescriptor is what auto-updater clients receive when an update exists
type UpdateDescriptor struct {
	Version      string       `json:"version"`
	Files        []UpdateFile `json:"files"`
	Path         string       `json:"path"`
	SHA512       string       `json:"sha512"`
	ReleaseDate  string       `json:"releaseDate"`
	ReleaseNotes string       `json:"releaseNotes"`
}

// Changelog holds the release notes of one version
type Changelog struct {
	ID              int64     `json:"id"`
	Version         string    `json:"version"`
	PreviousVersion string    `json:"previousVersion"`
	Changelog       string    `json:"changelog"`
	CommitCount     int       `json:"commitCount"`
	CreatedAt       time.Time `json:"createdAt"`
}

// LogEntry is a submitted client log; the content lives in blob storage at LogPath
type LogEntry struct {
	ID              int64          `json:"id"`
	UserID          string         `json:"userId"`
	SupportTicketID string         `json:"supportTicketId"`
	AppVersion      string         `json:"appVersion"`
	Platform        string         `json:"platform"`
	Arch            string         `json:"arch"`
	LogPath         string         `json:"logContent"`
	Metadata        map[string]any `json:"metadata"`
	CreatedAt       time.Time      `json:"createdAt"`
}

// CrashReport is a client crash with an optional dump in blob storage
type CrashReport struct {
	ID            string         `json:"id"`
	UserID        string         `json:"userId"`
	AppVersion    string         `json:"appVersion"`
	Platform      string         `json:"platform"`
	Arch          string         `json:"arch"`
	CrashDumpPath string         `json:"crashDumpUrl,omitempty"`
	ErrorMessage  string         `json:"errorMessage"`
	StackTrace    string         `json:"stackTrace"`
	Metadata      map[string]any `json:"metadata"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// ErrorReport is a signed runtime error forwarded by the desktop app
type ErrorReport struct {
	ID          string         `json:"id"`
	Level       string         `json:"level"`
	Message     string         `json:"message"`
	AppVersion  string         `json:"appVersion"`
	Platform    string         `json:"platform"`
	Environment string         `json:"environment"`
	Payload     map[string]any `json:"payload"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// User is an account created through an OAuth provider
type User struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	Username   string    `json:"username,omitempty"`
	AvatarURL  string    `json:"avatar_url"`
	Provider   string    `json:"provider"`
	ProviderID string    `json:"-"`
	LastLogin  time.Time `json:"last_login"`
	CreatedAt  time.Time `json:"created_at"`
}

// Session backs a refresh token; deleting it revokes the tokens issued for it
type Session struct {
	ID               string         `json:"id"`
	UserID           string         `json:"userId"`
	RefreshTokenHash string         `json:"-"`
	DeviceInfo       map[string]any `json:"deviceInfo"`
	IPAddress        string         `json:"ipAddress"`
	ExpiresAt        time.Time      `json:"expiresAt"`
	CreatedAt        time.Time      `json:"createdAt"`
}

package update

import (
	"context"
	"fmt"
	"time"

	"github.com/codeagentswarm/swarm-backend/internal/model"
	"go.uber.org/zap"
)

// ReleaseDateLayout renders createdAt the way JavaScript's Date.toISOString does.
const ReleaseDateLayout = "2006-01-02T15:04:05.000Z07:00"

// ReleaseStore returns the latest active, non-prerelease release for a
// platform/arch pair, or nil when none exists.
type ReleaseStore interface {
	GetLatestRelease(ctx context.Context, platform, arch string) (*model.Release, error)
}

// Resolver decides whether a client should update and describes the update.
// It holds no per-call state and is safe for concurrent use.
type Resolver struct {
	store  ReleaseStore
	logger *zap.Logger
}

// NewResolver creates a Resolver reading from store
func NewResolver(store ReleaseStore, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{store: store, logger: logger}
}

// Resolve returns the update descriptor for a client running currentVersion on
// platform/arch, or nil if no newer eligible release exists. An invalid
// currentVersion yields ErrInvalidVersion; store failures are returned as-is
// (wrapped) without retrying.
func (r *Resolver) Resolve(ctx context.Context, currentVersion, platform, arch string) (*model.UpdateDescriptor, error) {
	if err := ValidateVersion(currentVersion); err != nil {
		return nil, err
	}

	latest, err := r.store.GetLatestRelease(ctx, platform, arch)
	if err != nil {
		return nil, fmt.Errorf("failed to look up latest release: %w", err)
	}

	fields := []zap.Field{
		zap.String("platform", platform),
		zap.String("arch", arch),
		zap.String("current", currentVersion),
	}
	if latest == nil {
		r.logger.Debug("no eligible release", fields...)
		return nil, nil
	}
	fields = append(fields, zap.String("latest", latest.Version), zap.Int64("release_id", latest.ID))

	newer, err := IsNewer(latest.Version, currentVersion)
	if err != nil {
		return nil, fmt.Errorf("release %d: %w", latest.ID, err)
	}
	if !newer {
		r.logger.Debug("client is up to date", fields...)
		return nil, nil
	}

	r.logger.Debug("update available", fields...)
	return Describe(latest), nil
}

// Latest describes the latest eligible release regardless of client version,
// nil if there is none.
func (r *Resolver) Latest(ctx context.Context, platform, arch string) (*model.UpdateDescriptor, error) {
	latest, err := r.store.GetLatestRelease(ctx, platform, arch)
	if err != nil {
		return nil, fmt.Errorf("failed to look up latest release: %w", err)
	}
	if latest == nil {
		return nil, nil
	}
	return Describe(latest), nil
}

// Describe builds the single-file update descriptor of a release.
func Describe(rel *model.Release) *model.UpdateDescriptor {
	return &model.UpdateDescriptor{
		Version: rel.Version,
		Files: []model.UpdateFile{{
			URL:    rel.FileURL,
			SHA512: rel.SHA512,
			Size:   rel.FileSize,
		}},
		Path:         rel.FileName,
		SHA512:       rel.SHA512,
		ReleaseDate:  formatReleaseDate(rel.CreatedAt),
		ReleaseNotes: rel.ReleaseNotes,
	}
}

func formatReleaseDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(ReleaseDateLayout)
}

package changelog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/codeagentswarm/swarm-backend/internal/model"
	version "github.com/hashicorp/go-version"
)

// Separator joins the changelogs of consecutive versions in a combined view
const Separator = "\n\n---\n\n"

var (
	ErrInvalidRange = errors.New("invalid version range")
	ErrMissingField = errors.New("version and changelog are required")
)

// Store persists changelogs
type Store interface {
	SaveChangelog(ctx context.Context, c *model.Changelog) error
	GetChangelog(ctx context.Context, version string) (*model.Changelog, error)
	ListChangelogs(ctx context.Context, limit, offset int) ([]*model.Changelog, error)
}

// Service answers changelog queries over version ranges
type Service struct {
	store Store
}

// NewService creates a new changelog Service
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Save validates and upserts a changelog
func (s *Service) Save(ctx context.Context, c *model.Changelog) error {
	if c.Version == "" || strings.TrimSpace(c.Changelog) == "" {
		return ErrMissingField
	}
	if _, err := version.NewVersion(c.Version); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRange, err)
	}
	return s.store.SaveChangelog(ctx, c)
}

// Get returns the changelog of one version, nil if missing
func (s *Service) Get(ctx context.Context, v string) (*model.Changelog, error) {
	return s.store.GetChangelog(ctx, v)
}

// List pages through changelogs, newest first
func (s *Service) List(ctx context.Context, limit, offset int) ([]*model.Changelog, error) {
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListChangelogs(ctx, limit, offset)
}

// Between returns the changelogs of versions v with from < v <= to, in
// ascending version order. Prereleases are ordered by semver precedence and
// included. Stored entries with unparseable versions are skipped.
func (s *Service) Between(ctx context.Context, from, to string) ([]*model.Changelog, error) {
	lower, err := version.NewVersion(from)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRange, err)
	}
	upper, err := version.NewVersion(to)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRange, err)
	}

	all, err := s.store.ListChangelogs(ctx, 0, 0)
	if err != nil {
		return nil, err
	}

	type entry struct {
		v *version.Version
		c *model.Changelog
	}
	var matched []entry
	for _, c := range all {
		v, err := version.NewVersion(c.Version)
		if err != nil {
			continue
		}
		if v.GreaterThan(lower) && !v.GreaterThan(upper) {
			matched = append(matched, entry{v, c})
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].v.LessThan(matched[j].v)
	})

	result := make([]*model.Changelog, 0, len(matched))
	for _, m := range matched {
		result = append(result, m.c)
	}
	return result, nil
}

// Combined joins the changelogs between from and to into one text. The
// second return is false when no changelog falls in the range.
func (s *Service) Combined(ctx context.Context, from, to string) (string, bool, error) {
	changelogs, err := s.Between(ctx, from, to)
	if err != nil {
		return "", false, err
	}
	if len(changelogs) == 0 {
		return "", false, nil
	}
	texts := make([]string, 0, len(changelogs))
	for _, c := range changelogs {
		texts = append(texts, c.Changelog)
	}
	return strings.Join(texts, Separator), true, nil
}

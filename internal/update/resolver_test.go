package update

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/codeagentswarm/swarm-backend/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type stubStore struct {
	mu      sync.Mutex
	release *model.Release
	err     error
	calls   []string
}

func (s *stubStore) GetLatestRelease(_ context.Context, platform, arch string) (*model.Release, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, platform+"/"+arch)
	return s.release, s.err
}

func scenarioRelease(version string) *model.Release {
	return &model.Release{
		ID:           7,
		Version:      version,
		Platform:     "darwin",
		Arch:         "x64",
		FileName:     "a.dmg",
		FileURL:      "https://x/a.dmg",
		FileSize:     100,
		SHA512:       "abc",
		ReleaseNotes: "notes",
		IsActive:     true,
		CreatedAt:    time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC),
	}
}

func TestResolveNewerRelease(t *testing.T) {
	store := &stubStore{release: scenarioRelease("2.0.0")}
	r := NewResolver(store, zap.NewNop())

	got, err := r.Resolve(context.Background(), "1.5.0", "darwin", "x64")
	require.NoError(t, err)

	want := &model.UpdateDescriptor{
		Version:      "2.0.0",
		Files:        []model.UpdateFile{{URL: "https://x/a.dmg", SHA512: "abc", Size: 100}},
		Path:         "a.dmg",
		SHA512:       "abc",
		ReleaseDate:  "2024-03-15T10:00:00.000Z",
		ReleaseNotes: "notes",
	}
	assert.Equal(t, want, got)
	assert.Equal(t, []string{"darwin/x64"}, store.calls)
}

func TestResolveBoundaries(t *testing.T) {
	tests := []struct {
		name    string
		latest  string
		current string
		update  bool
	}{
		{"equal", "2.0.0", "2.0.0", false},
		{"client ahead", "2.0.0", "2.1.0", false},
		{"client behind", "2.0.0", "1.9.9", true},
		{"prerelease target beats older release", "2.0.0-beta.1", "1.9.9", true},
		{"release beats its prerelease", "2.0.0", "2.0.0-rc.3", true},
		{"build metadata ignored", "2.0.0+build.5", "2.0.0+build.1", false},
		{"v prefix", "v2.0.0", "1.0.0", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(&stubStore{release: scenarioRelease(tt.latest)}, nil)
			got, err := r.Resolve(context.Background(), tt.current, "darwin", "x64")
			require.NoError(t, err)
			if !tt.update {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.latest, got.Version)
			assert.Len(t, got.Files, 1)
		})
	}
}

func TestResolveNoRelease(t *testing.T) {
	r := NewResolver(&stubStore{}, nil)
	got, err := r.Resolve(context.Background(), "1.0.0", "linux", "arm64")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestResolveStoreFailurePropagates(t *testing.T) {
	boom := errors.New("connection refused")
	store := &stubStore{err: boom}
	r := NewResolver(store, nil)

	got, err := r.Resolve(context.Background(), "1.0.0", "darwin", "x64")
	assert.Nil(t, got)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, store.calls, 1, "no retry")
}

func TestResolveInvalidCurrentVersion(t *testing.T) {
	store := &stubStore{release: scenarioRelease("2.0.0")}
	r := NewResolver(store, nil)

	_, err := r.Resolve(context.Background(), "not-a-version", "darwin", "x64")
	assert.ErrorIs(t, err, ErrInvalidVersion)
	assert.Empty(t, store.calls, "validation happens before the store read")
}

func TestResolveInvalidStoredVersion(t *testing.T) {
	r := NewResolver(&stubStore{release: scenarioRelease("2.0")}, nil)
	_, err := r.Resolve(context.Background(), "1.0.0", "darwin", "x64")
	assert.ErrorIs(t, err, ErrInvalidVersion)
}

func TestResolveIdempotent(t *testing.T) {
	r := NewResolver(&stubStore{release: scenarioRelease("3.1.4")}, nil)
	first, err := r.Resolve(context.Background(), "3.0.0", "darwin", "x64")
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), "3.0.0", "darwin", "x64")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestResolveConcurrent(t *testing.T) {
	r := NewResolver(&stubStore{release: scenarioRelease("2.0.0")}, nil)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := r.Resolve(context.Background(), "1.0.0", "darwin", "x64")
			assert.NoError(t, err)
			assert.NotNil(t, got)
		}()
	}
	wg.Wait()
}

func TestResolveLogsCorrelation(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := NewResolver(&stubStore{release: scenarioRelease("2.0.0")}, zap.New(core))

	_, err := r.Resolve(context.Background(), "1.0.0", "darwin", "x64")
	require.NoError(t, err)

	entries := logs.FilterMessage("update available").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "1.0.0", fields["current"])
	assert.Equal(t, "2.0.0", fields["latest"])
}

func TestLatest(t *testing.T) {
	r := NewResolver(&stubStore{release: scenarioRelease("2.0.0")}, nil)
	got, err := r.Latest(context.Background(), "darwin", "x64")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "2.0.0", got.Version)

	none, err := NewResolver(&stubStore{}, nil).Latest(context.Background(), "darwin", "x64")
	require.NoError(t, err)
	assert.Nil(t, none)
}

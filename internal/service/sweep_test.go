package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/codeagentswarm/swarm-backend/internal/model"
	"github.com/codeagentswarm/swarm-backend/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSweepAll(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	st, err := store.NewSQLiteStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	defer st.Close()
	st.SetClock(func() time.Time { return now })

	user := &model.User{ID: "u1", Email: "a@example.com", Provider: "github", ProviderID: "1"}
	require.NoError(t, st.CreateUser(ctx, user))
	require.NoError(t, st.CreateSession(ctx, &model.Session{ID: "old", UserID: "u1", ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, st.CreateSession(ctx, &model.Session{ID: "live", UserID: "u1", ExpiresAt: now.Add(48 * time.Hour)}))
	_, err = st.Hit(ctx, "errors:10.0.0.1", time.Minute)
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)

	var got map[string]int64
	svc := NewSweepService(st, time.Hour, zap.NewNop())
	svc.SetOnSweepCallback(func(removed map[string]int64) { got = removed })
	require.NoError(t, svc.SweepAll(ctx))

	assert.Equal(t, map[string]int64{"sessions": 1, "counters": 1}, got)

	sess, err := st.GetSession(ctx, "live")
	require.NoError(t, err)
	assert.NotNil(t, sess)
}

type failingStore struct{}

func (failingStore) DeleteExpiredSessions(context.Context) (int64, error) {
	return 0, errors.New("disk I/O error")
}

func (failingStore) DeleteStaleCounters(context.Context, time.Duration) (int64, error) {
	return 2, nil
}

func TestSweepAllReportsErrors(t *testing.T) {
	called := false
	svc := NewSweepService(failingStore{}, time.Hour, zap.NewNop())
	svc.SetOnSweepCallback(func(map[string]int64) { called = true })

	err := svc.SweepAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sessions")
	assert.False(t, called)
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewSweepService(failingStore{}, time.Hour, zap.NewNop()).Run(ctx, time.Hour)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

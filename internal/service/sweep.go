package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SweepStore is the part of the store holding expiring rows
type SweepStore interface {
	DeleteExpiredSessions(ctx context.Context) (int64, error)
	DeleteStaleCounters(ctx context.Context, olderThan time.Duration) (int64, error)
}

// SweepService removes expired sessions and stale rate counters
type SweepService struct {
	store      SweepStore
	logger     *zap.Logger
	counterTTL time.Duration
	onSweep    func(removed map[string]int64)
}

// NewSweepService creates a new SweepService. Counters whose window started
// more than counterTTL ago are considered stale.
func NewSweepService(store SweepStore, counterTTL time.Duration, logger *zap.Logger) *SweepService {
	return &SweepService{
		store:      store,
		logger:     logger,
		counterTTL: counterTTL,
	}
}

// SetOnSweepCallback sets a callback invoked after each successful sweep
func (s *SweepService) SetOnSweepCallback(callback func(removed map[string]int64)) {
	s.onSweep = callback
}

// SweepAll runs every cleanup task concurrently
func (s *SweepService) SweepAll(ctx context.Context) error {
	tasks := map[string]func(context.Context) (int64, error){
		"sessions": s.store.DeleteExpiredSessions,
		"counters": func(ctx context.Context) (int64, error) {
			return s.store.DeleteStaleCounters(ctx, s.counterTTL)
		},
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		removed = make(map[string]int64, len(tasks))
	)
	errChan := make(chan error, len(tasks))

	for name, task := range tasks {
		wg.Add(1)
		go func(name string, task func(context.Context) (int64, error)) {
			defer wg.Done()
			n, err := task(ctx)
			if err != nil {
				errChan <- fmt.Errorf("failed to sweep %s: %w", name, err)
				return
			}
			mu.Lock()
			removed[name] = n
			mu.Unlock()
		}(name, task)
	}

	wg.Wait()
	close(errChan)

	var errs []error
	for err := range errChan {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("sweep errors: %v", errs)
	}

	s.logger.Info("sweep completed",
		zap.Int64("sessions", removed["sessions"]),
		zap.Int64("counters", removed["counters"]),
	)
	if s.onSweep != nil {
		s.onSweep(removed)
	}
	return nil
}

// Run sweeps every interval until ctx is cancelled
func (s *SweepService) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.SweepAll(ctx); err != nil {
				s.logger.Error("periodic sweep failed", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

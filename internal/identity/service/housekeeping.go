package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/tollgate/internal/identity/store"
	"github.com/aussiebroadwan/tollgate/pkg/slogx"
)

const DefaultHousekeepingInterval = time.Hour

// HousekeepingService periodically deletes expired refresh token records so
// that abandoned sessions do not accumulate.
type HousekeepingService struct {
	Purger   store.ExpiredRefreshTokenPurger
	Logger   *slog.Logger
	Interval time.Duration
	Now      func() time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

func NewHousekeepingService(purger store.ExpiredRefreshTokenPurger, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = DefaultHousekeepingInterval
	}
	return &HousekeepingService{
		Purger:   purger,
		Logger:   logger,
		Interval: interval,
		Now:      time.Now,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs a cleanup immediately and then every Interval until Stop.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", slog.Duration("interval", s.Interval))
}

// Stop blocks until an in-progress cleanup has finished.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.cleanup()
	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCh:
			return
		}
	}
}

func (s *HousekeepingService) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), s.Interval)
	defer cancel()

	n, err := s.Purger.DeleteExpiredRefreshTokens(ctx, s.Now())
	if err != nil {
		s.Logger.Error("failed to delete expired refresh tokens", slogx.Err(err))
		return
	}
	s.Logger.Info("housekeeping cleanup completed", slog.Int64("refresh_tokens_deleted", n))
}

package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/openledger/oidcd/internal/oidc/store"
)

// HousekeepingService periodically deletes dead grant records so the tables
// don't grow without bound. It only ever garbage-collects rows that are both
// revoked and past expiry; validity decisions stay with the services that
// read the rows.
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration

	// Retention is how long a dead record is kept before deletion, useful
	// for audit. Zero means delete as soon as eligible.
	Retention time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a housekeeping service with the given
// interval. If interval is 0 or negative, defaults to 1 hour.
func NewHousekeepingService(st store.Store, logger *slog.Logger, interval, retention time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}

	return &HousekeepingService{
		Store:     st,
		Logger:    logger,
		Interval:  interval,
		Retention: retention,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins the background worker that periodically runs cleanup.
// Non-blocking; call Stop to shut the worker down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop shuts down the background worker, blocking until any in-progress
// cleanup has finished.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Run cleanup immediately on startup
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

// cleanup deletes eligible records. Each deletion is independent; a failure
// in one won't stop the others.
func (s *HousekeepingService) cleanup() {
	ctx := context.Background()
	cutoff := time.Now().UTC().Add(-s.Retention)
	s.Logger.Info("starting housekeeping cleanup", "cutoff", cutoff)

	if err := s.Store.AuthorizationCodes().DeleteAuthorizationCodesBefore(ctx, cutoff); err != nil {
		s.Logger.Error("failed to delete dead authorization codes", "error", err)
	}
	if err := s.Store.Tokens().DeleteTokensBefore(ctx, cutoff); err != nil {
		s.Logger.Error("failed to delete dead tokens", "error", err)
	}
	if err := s.Store.IdentityTokens().DeleteIdentityTokensBefore(ctx, cutoff); err != nil {
		s.Logger.Error("failed to delete old identity token records", "error", err)
	}

	s.Logger.Info("housekeeping cleanup completed")
}

// Package maintenance runs scheduled housekeeping jobs for the license server.
package maintenance

import (
	"context"
	"errors"
	"sync"

	"github.com/DelfimCelestino/dinex/internal/license"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// ExpiryStore defines the interface for expiry sweep data access.
type ExpiryStore interface {
	GetExpiredActiveLicenses(ctx context.Context) ([]*license.License, error)
}

// ExpiryGauge receives the expired-but-active count from each sweep.
type ExpiryGauge interface {
	SetExpiredActive(n int)
}

// ExpiryScheduler periodically reports licenses that stayed active past their
// expiry date. Expiry is enforced at validation time, so the sweep only
// observes and never flips is_active: flipping it would change the failure
// clients see from "expired" to "inactive".
type ExpiryScheduler struct {
	store   ExpiryStore
	gauge   ExpiryGauge
	spec    string
	cron    *cron.Cron
	logger  zerolog.Logger
	mu      sync.Mutex
	running bool
}

// NewExpiryScheduler creates a new expiry report scheduler.
func NewExpiryScheduler(store ExpiryStore, gauge ExpiryGauge, spec string, logger zerolog.Logger) *ExpiryScheduler {
	return &ExpiryScheduler{
		store:  store,
		gauge:  gauge,
		spec:   spec,
		cron:   cron.New(),
		logger: logger.With().Str("component", "expiry_sweep").Logger(),
	}
}

// Start begins the scheduled expiry sweep.
func (s *ExpiryScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("expiry scheduler already running")
	}

	_, err := s.cron.AddFunc(s.spec, s.runSweep)
	if err != nil {
		return err
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().Str("spec", s.spec).Msg("expiry sweep scheduler started")
	return nil
}

// Stop stops the scheduler gracefully.
func (s *ExpiryScheduler) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}

	s.running = false
	s.logger.Info().Msg("stopping expiry sweep scheduler")
	return s.cron.Stop()
}

// runSweep lists expired active licenses and reports them.
func (s *ExpiryScheduler) runSweep() {
	ctx := context.Background()

	licenses, err := s.store.GetExpiredActiveLicenses(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("expiry sweep failed")
		return
	}

	if s.gauge != nil {
		s.gauge.SetExpiredActive(len(licenses))
	}

	for _, lic := range licenses {
		s.logger.Warn().
			Str("license_key", lic.LicenseKey).
			Str("client_name", lic.ClientName).
			Time("expires_at", lic.ExpiresAt).
			Msg("license expired but still marked active")
	}

	s.logger.Info().Int("expired_active", len(licenses)).Msg("expiry sweep completed")
}

// RunNow triggers an immediate sweep (useful for testing).
func (s *ExpiryScheduler) RunNow() {
	s.runSweep()
}

package terminal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/DelfimCelestino/dinex/internal/license"
	"github.com/rs/zerolog"
)

// InvalidHandler is invoked when the session's license transitions from
// valid to invalid, with the server's rejection message.
type InvalidHandler func(message string)

// Session owns the terminal's license state: the durable cache, periodic
// re-validation against the server, and a local expiry sweep that works
// without network access.
//
// A network failure never invalidates a working terminal. Only an explicit
// server rejection or a locally observed expiry does.
type Session struct {
	cache  *Cache
	client *Client
	logger zerolog.Logger

	mu    sync.RWMutex
	key   string
	lic   *license.License
	valid bool

	checkInterval time.Duration
	sweepInterval time.Duration

	runMu   sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	handlerMu sync.Mutex
	handlers  []InvalidHandler

	now func() time.Time
}

// NewSession creates a Session over the given cache and server client.
func NewSession(cache *Cache, client *Client, checkInterval, sweepInterval time.Duration, logger zerolog.Logger) *Session {
	return &Session{
		cache:         cache,
		client:        client,
		logger:        logger.With().Str("component", "license_session").Logger(),
		checkInterval: checkInterval,
		sweepInterval: sweepInterval,
		now:           time.Now,
	}
}

// OnInvalid registers a handler invoked when the license transitions to invalid.
func (s *Session) OnInvalid(fn InvalidHandler) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.handlers = append(s.handlers, fn)
}

// Restore loads the cached license, if any, and revalidates it against the
// server. With the server unreachable a locally unexpired cached license is
// accepted so the terminal can open offline.
func (s *Session) Restore(ctx context.Context) error {
	key, lic, err := s.cache.Load(ctx)
	if err != nil {
		return fmt.Errorf("load cached license: %w", err)
	}
	if key == "" {
		return nil
	}

	s.mu.Lock()
	s.key = key
	s.lic = lic
	s.valid = !lic.Expired(s.now())
	s.mu.Unlock()

	if lic.Expired(s.now()) {
		s.logger.Warn().Msg("cached license is expired")
		return nil
	}

	s.CheckLicenseStatus(ctx)
	return nil
}

// Activate validates the key against the server and, when accepted, persists
// it as this terminal's license. A rejection is returned as the result, not an
// error; errors mean the server could not be consulted.
func (s *Session) Activate(ctx context.Context, key string) (*license.ValidationResult, error) {
	result, err := s.client.Validate(ctx, key)
	if err != nil {
		return nil, err
	}

	if !result.Valid {
		s.logger.Warn().Str("message", result.Message).Msg("activation rejected")
		return result, nil
	}

	if err := s.cache.Store(ctx, key, result.License); err != nil {
		return nil, fmt.Errorf("persist license: %w", err)
	}

	s.mu.Lock()
	s.key = key
	s.lic = result.License
	s.valid = true
	s.mu.Unlock()

	s.logger.Info().Str("client_name", result.License.ClientName).Msg("license activated")
	return result, nil
}

// CheckLicenseStatus revalidates the current license against the server.
//
// Three outcomes:
//   - server says valid: refresh the cached payload and stay valid, unless
//     the license is already expired on the local clock
//   - server says invalid: drop the license, clear the cache, notify once
//   - server unreachable: keep the current state, but still reject a license
//     whose expiry date has passed locally
func (s *Session) CheckLicenseStatus(ctx context.Context) {
	s.mu.RLock()
	key := s.key
	lic := s.lic
	s.mu.RUnlock()

	if key == "" {
		return
	}

	result, err := s.client.Validate(ctx, key)
	if err != nil {
		s.logger.Warn().Err(err).Msg("license server unreachable, keeping current state")
		if lic != nil && lic.Expired(s.now()) {
			s.invalidate(ctx, license.MsgExpired)
		}
		return
	}

	if result.Valid {
		// The server's verdict does not override the license's own clock. A
		// skewed clock or stale server cache must not keep an expired
		// terminal open.
		if result.License == nil || result.License.Expired(s.now()) {
			s.logger.Warn().Msg("server accepted an expired license, rejecting locally")
			s.invalidate(ctx, license.MsgExpired)
			return
		}
		if err := s.cache.Store(ctx, key, result.License); err != nil {
			s.logger.Error().Err(err).Msg("failed to refresh cached license")
		}
		s.mu.Lock()
		s.lic = result.License
		s.valid = true
		s.mu.Unlock()
		return
	}

	s.logger.Warn().Str("message", result.Message).Msg("license rejected by server")
	s.invalidate(ctx, result.Message)
}

// Valid reports whether the terminal currently holds a valid license.
func (s *Session) Valid() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.valid
}

// License returns the current license, or nil.
func (s *Session) License() *license.License {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lic
}

// Clear drops the license from memory and the cache without consulting the
// server. Used when an operator deliberately detaches the terminal.
func (s *Session) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.key = ""
	s.lic = nil
	s.valid = false
	s.mu.Unlock()

	return s.cache.Clear(ctx)
}

// Start launches the periodic re-validation and local expiry sweep loops.
func (s *Session) Start() {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.running {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})

	s.wg.Add(2)
	go s.checkLoop()
	go s.sweepLoop()

	s.logger.Info().
		Dur("check_interval", s.checkInterval).
		Dur("sweep_interval", s.sweepInterval).
		Msg("license session started")
}

// Close stops the background loops and closes the cache.
func (s *Session) Close() error {
	s.stopLoops()
	s.wg.Wait()
	return s.cache.Close()
}

// stopLoops signals both background loops to exit. Safe to call from inside
// a loop goroutine; it never waits.
func (s *Session) stopLoops() {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	close(s.stopCh)
}

func (s *Session) checkLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			s.CheckLicenseStatus(ctx)
			cancel()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Session) sweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweepLocalExpiry()
		case <-s.stopCh:
			return
		}
	}
}

// sweepLocalExpiry checks the held license against the local clock only, so
// an expired license is rejected even on a terminal that lost its network.
func (s *Session) sweepLocalExpiry() {
	s.mu.RLock()
	lic := s.lic
	valid := s.valid
	s.mu.RUnlock()

	if !valid || lic == nil {
		return
	}
	if !lic.Expired(s.now()) {
		return
	}

	s.logger.Warn().Time("expires_at", lic.ExpiresAt).Msg("license expired locally")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.invalidate(ctx, license.MsgExpired)
}

// invalidate drops the license, stops the background loops, and notifies
// handlers once per transition. Without a license there is nothing left to
// re-check or sweep.
func (s *Session) invalidate(ctx context.Context, message string) {
	s.mu.Lock()
	wasValid := s.valid
	s.key = ""
	s.lic = nil
	s.valid = false
	s.mu.Unlock()

	s.stopLoops()

	if err := s.cache.Clear(ctx); err != nil {
		s.logger.Error().Err(err).Msg("failed to clear license cache")
	}

	if !wasValid {
		return
	}

	s.handlerMu.Lock()
	handlers := make([]InvalidHandler, len(s.handlers))
	copy(handlers, s.handlers)
	s.handlerMu.Unlock()

	for _, fn := range handlers {
		fn(message)
	}
}

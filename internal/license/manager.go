package license

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// validateTimeout bounds each store round trip during periodic self-checks.
const validateTimeout = 30 * time.Second

// Store is the persistence boundary the manager depends on. GetLicenseByKey
// returns (nil, nil) when no row matches. ConsumeValidation atomically
// increments the validation counter and stamps last_validation, but only
// while the counter is below the ceiling; it returns (nil, nil) when the
// quota is exhausted.
type Store interface {
	GetLicenseByKey(ctx context.Context, key string) (*License, error)
	CreateLicense(ctx context.Context, lic *License) error
	ConsumeValidation(ctx context.Context, key string) (*License, error)
}

// ExpiredHandler is invoked when the manager's license transitions from
// valid to invalid.
type ExpiredHandler func(message string)

// CreateParams are the caller-supplied fields for a new license. The
// validation ceiling is a store-side default and is deliberately absent.
type CreateParams struct {
	ClientName  string
	ClientEmail string
	HardwareID  string
	MachineName string
	Days        int
	Version     string
	Features    map[string]bool
}

// Manager orchestrates license issuance and validation. It is constructed
// once at process start and injected into its callers; the last successfully
// validated license is kept as an explicit in-memory cache read by the
// feature-flag and days-remaining lookups.
type Manager struct {
	store       Store
	signer      *Signer
	fingerprint Fingerprinter
	logger      zerolog.Logger

	mu            sync.RWMutex
	lastValidated *License
	currentKey    string
	running       bool
	stopCh        chan struct{}

	expiredMu       sync.Mutex
	expiredHandlers []ExpiredHandler

	now func() time.Time
}

// NewManager creates a license manager.
func NewManager(store Store, signer *Signer, fingerprint Fingerprinter, logger zerolog.Logger) *Manager {
	return &Manager{
		store:       store,
		signer:      signer,
		fingerprint: fingerprint,
		logger:      logger.With().Str("component", "license_manager").Logger(),
		now:         time.Now,
	}
}

// Create issues a new license: generates the key, signs the canonical
// payload, and persists the row with is_active=true and a zero validation
// counter. When HardwareID is empty the license is bound to the current
// machine. Returns the generated license key.
func (m *Manager) Create(ctx context.Context, p CreateParams) (string, error) {
	if p.ClientName == "" {
		return "", fmt.Errorf("client name is required")
	}
	if p.Days <= 0 {
		return "", fmt.Errorf("license duration must be at least one day")
	}

	key, err := GenerateKey()
	if err != nil {
		return "", fmt.Errorf("generate license key: %w", err)
	}

	hardwareID := p.HardwareID
	machineName := p.MachineName
	if hardwareID == "" {
		hw := m.fingerprint.Fingerprint(ctx)
		hardwareID = hw.HardwareID
		if machineName == "" {
			machineName = hw.MachineName
		}
	}

	features, err := EncodeFeatures(p.Features)
	if err != nil {
		return "", fmt.Errorf("encode features: %w", err)
	}

	now := m.now()
	lic := &License{
		LicenseKey:  key,
		ClientName:  p.ClientName,
		ClientEmail: p.ClientEmail,
		HardwareID:  hardwareID,
		MachineName: machineName,
		IssuedAt:    now,
		ExpiresAt:   now.Add(time.Duration(p.Days) * 24 * time.Hour),
		Version:     p.Version,
		Features:    features,
		IsActive:    true,
	}
	lic.Signature = m.signer.Sign(lic)

	if err := m.store.CreateLicense(ctx, lic); err != nil {
		return "", fmt.Errorf("persist license: %w", err)
	}

	m.logger.Info().
		Str("client", p.ClientName).
		Time("expires_at", lic.ExpiresAt).
		Bool("machine_bound", p.HardwareID == "").
		Msg("license created")

	return key, nil
}

// Validate runs the validation pipeline for a presented key, short-circuiting
// at the first failing check. Cheap tamper checks (existence, active flag,
// signature) come before the hardware and clock checks, and the validation
// quota is consumed only on success, so a wrong-hardware or expired attempt
// never burns quota for an otherwise-valid record. The returned error is
// non-nil only for infrastructure failures.
func (m *Manager) Validate(ctx context.Context, key string) (*ValidationResult, error) {
	lic, err := m.store.GetLicenseByKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("look up license: %w", err)
	}
	if lic == nil {
		return m.reject(key, OutcomeNotFound, MsgNotFound), nil
	}

	if !lic.IsActive {
		return m.reject(key, OutcomeInactive, MsgInactive), nil
	}

	if !m.signer.Verify(lic) {
		// Tamper or corruption; never auto-repair.
		m.logger.Warn().Str("client", lic.ClientName).Msg("license signature mismatch")
		return m.reject(key, OutcomeBadSignature, MsgBadSignature), nil
	}

	hw := m.fingerprint.Fingerprint(ctx)
	if hw.HardwareID != lic.HardwareID {
		return m.reject(key, OutcomeWrongHardware, MsgWrongHardware), nil
	}

	if lic.Expired(m.now()) {
		return m.reject(key, OutcomeExpired, MsgExpired), nil
	}

	updated, err := m.store.ConsumeValidation(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("consume validation: %w", err)
	}
	if updated == nil {
		return m.reject(key, OutcomeQuotaExceeded, MsgQuotaExceeded), nil
	}

	m.mu.Lock()
	m.lastValidated = updated
	m.currentKey = key
	m.mu.Unlock()

	return &ValidationResult{
		Valid:   true,
		Message: MsgValid,
		License: updated,
		Outcome: OutcomeValid,
	}, nil
}

// reject builds a failed result. If the failing key is the one backing the
// in-memory license, that cache is cleared and the expiry signal fires,
// exactly once per transition to invalid.
func (m *Manager) reject(key string, outcome Outcome, message string) *ValidationResult {
	m.mu.Lock()
	wasCurrent := m.lastValidated != nil && m.currentKey == key
	if wasCurrent {
		m.lastValidated = nil
	}
	m.mu.Unlock()

	if wasCurrent {
		m.notifyExpired(message)
	}

	return &ValidationResult{Valid: false, Message: message, Outcome: outcome}
}

// HardwareInfo returns this machine's hardware fingerprint.
func (m *Manager) HardwareInfo(ctx context.Context) *HardwareInfo {
	return m.fingerprint.Fingerprint(ctx)
}

// LastValidated returns the most recently validated license, or nil when no
// validation has succeeded (or the license has since become invalid).
func (m *Manager) LastValidated() *License {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastValidated
}

// IsFeatureEnabled reports whether the named feature is enabled on the last
// successfully validated license. It fails closed: no validated license, an
// absent flag, or an unparsable feature mapping all read as disabled.
func (m *Manager) IsFeatureEnabled(name string) bool {
	m.mu.RLock()
	lic := m.lastValidated
	m.mu.RUnlock()

	if lic == nil {
		return false
	}
	return lic.ParseFeatures()[name]
}

// DaysRemaining returns whole days until the last validated license expires,
// or 0 when no validated license is held.
func (m *Manager) DaysRemaining() int {
	m.mu.RLock()
	lic := m.lastValidated
	m.mu.RUnlock()

	if lic == nil {
		return 0
	}
	return lic.DaysRemaining(m.now())
}

// OnExpired registers a handler invoked when the managed license transitions
// to invalid.
func (m *Manager) OnExpired(fn ExpiredHandler) {
	m.expiredMu.Lock()
	defer m.expiredMu.Unlock()
	m.expiredHandlers = append(m.expiredHandlers, fn)
}

func (m *Manager) notifyExpired(message string) {
	m.expiredMu.Lock()
	handlers := make([]ExpiredHandler, len(m.expiredHandlers))
	copy(handlers, m.expiredHandlers)
	m.expiredMu.Unlock()

	for _, fn := range handlers {
		fn(message)
	}
}

// StartPeriodicValidation begins re-validating the current license on the
// given interval. Each tick performs a single validate call, so ticks cannot
// overlap in any meaningful way; a tick with no current key is a no-op.
func (m *Manager) StartPeriodicValidation(interval time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("periodic validation already running")
	}
	m.running = true
	m.stopCh = make(chan struct{})

	go m.validationLoop(m.stopCh, interval)

	m.logger.Info().Dur("interval", interval).Msg("periodic license validation started")
	return nil
}

// StopPeriodicValidation cancels the periodic re-validation loop.
func (m *Manager) StopPeriodicValidation() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	m.running = false
	close(m.stopCh)
}

func (m *Manager) validationLoop(stopCh <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			m.mu.RLock()
			key := m.currentKey
			hasLicense := m.lastValidated != nil
			m.mu.RUnlock()

			if key == "" || !hasLicense {
				continue
			}

			ctx, cancel := context.WithTimeout(context.Background(), validateTimeout)
			result, err := m.Validate(ctx, key)
			cancel()

			if err != nil {
				// Store unreachable is not a verdict on the license.
				m.logger.Warn().Err(err).Msg("periodic license check failed, keeping current state")
				continue
			}
			if !result.Valid {
				m.logger.Warn().Str("reason", result.Message).Msg("license no longer valid")
			}
		}
	}
}

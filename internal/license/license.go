// Package license provides node-locked license issuance, validation, and
// feature gating for Dinex.
package license

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Validation outcomes. Outcome is a stable machine-readable label; the
// matching Msg* constant is the human-readable message returned to callers.
type Outcome string

const (
	OutcomeValid         Outcome = "valid"
	OutcomeNotFound      Outcome = "not_found"
	OutcomeInactive      Outcome = "inactive"
	OutcomeBadSignature  Outcome = "bad_signature"
	OutcomeWrongHardware Outcome = "wrong_hardware"
	OutcomeExpired       Outcome = "expired"
	OutcomeQuotaExceeded Outcome = "quota_exceeded"
)

const (
	MsgValid         = "license is valid"
	MsgNotFound      = "license not found"
	MsgInactive      = "license is inactive"
	MsgBadSignature  = "invalid license signature"
	MsgWrongHardware = "license is not valid for this machine"
	MsgExpired       = "license has expired"
	MsgQuotaExceeded = "validation limit exceeded"
)

// License is a persisted license record. Rows are created once per install,
// validated repeatedly for the life of the deployment, and retired by
// flipping IsActive or by deletion.
type License struct {
	ID              uuid.UUID  `json:"id"`
	LicenseKey      string     `json:"license_key"`
	ClientName      string     `json:"client_name"`
	ClientEmail     string     `json:"client_email,omitempty"`
	HardwareID      string     `json:"hardware_id"`
	MachineName     string     `json:"machine_name"`
	IssuedAt        time.Time  `json:"issued_at"`
	ExpiresAt       time.Time  `json:"expires_at"`
	Version         string     `json:"version"`
	Features        string     `json:"features"`
	Signature       string     `json:"signature"`
	IsActive        bool       `json:"is_active"`
	ValidationCount int        `json:"validation_count"`
	MaxValidations  int        `json:"max_validations"`
	LastValidation  *time.Time `json:"last_validation,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// ParseFeatures decodes the serialized feature mapping. An absent or
// unparsable mapping yields an empty map, so every feature reads as
// disabled (fail closed).
func (l *License) ParseFeatures() map[string]bool {
	if l == nil || l.Features == "" {
		return map[string]bool{}
	}
	var features map[string]bool
	if err := json.Unmarshal([]byte(l.Features), &features); err != nil {
		return map[string]bool{}
	}
	if features == nil {
		return map[string]bool{}
	}
	return features
}

// Expired reports whether the license is past its expiry at the given time.
func (l *License) Expired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}

// DaysRemaining returns whole days until expiry at the given time, never negative.
func (l *License) DaysRemaining(now time.Time) int {
	days := int(l.ExpiresAt.Sub(now).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// ValidationResult is the structured outcome of a validation attempt.
// Negative business outcomes (inactive, expired, tampered, and so on) are
// carried here as Valid=false with a message, never as errors; errors are
// reserved for infrastructure failures.
type ValidationResult struct {
	Valid   bool     `json:"valid"`
	Message string   `json:"message"`
	License *License `json:"license,omitempty"`
	Outcome Outcome  `json:"-"`
}

// EncodeFeatures serializes a feature mapping for storage. A nil map
// serializes to an empty JSON object.
func EncodeFeatures(features map[string]bool) (string, error) {
	if features == nil {
		features = map[string]bool{}
	}
	data, err := json.Marshal(features)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

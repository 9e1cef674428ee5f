package license

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// signedFields is the canonical signing payload. Field order is load-bearing:
// encoding/json emits struct fields in declaration order, and every issued
// signature depends on this exact serialization. ClientEmail, MachineName,
// and Features are deliberately excluded so they stay editable without
// re-signing.
type signedFields struct {
	LicenseKey string `json:"licenseKey"`
	ClientName string `json:"clientName"`
	HardwareID string `json:"hardwareId"`
	IssuedAt   string `json:"issuedAt"`
	ExpiresAt  string `json:"expiresAt"`
	Version    string `json:"version"`
}

// Signer computes and verifies HMAC-SHA256 signatures over the canonical
// license payload using a server-held secret.
type Signer struct {
	secret []byte
}

// NewSigner creates a Signer with the given shared secret.
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Sign computes the hex-encoded HMAC-SHA256 signature for the license.
func (s *Signer) Sign(lic *License) string {
	payload := signedFields{
		LicenseKey: lic.LicenseKey,
		ClientName: lic.ClientName,
		HardwareID: lic.HardwareID,
		IssuedAt:   lic.IssuedAt.UTC().Format(time.RFC3339),
		ExpiresAt:  lic.ExpiresAt.UTC().Format(time.RFC3339),
		Version:    lic.Version,
	}

	// Marshal of a flat string struct cannot fail.
	data, _ := json.Marshal(payload)

	mac := hmac.New(sha256.New, s.secret)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the signature from the license's current fields and
// compares it against the stored signature in constant time.
func (s *Signer) Verify(lic *License) bool {
	expected := s.Sign(lic)
	return hmac.Equal([]byte(expected), []byte(lic.Signature))
}

package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DelfimCelestino/dinex/internal/license"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// gateStore is a single-license Store stub for feature gate tests.
type gateStore struct {
	lic *license.License
}

func (s *gateStore) GetLicenseByKey(_ context.Context, key string) (*license.License, error) {
	if s.lic != nil && s.lic.LicenseKey == key {
		cp := *s.lic
		return &cp, nil
	}
	return nil, nil
}

func (s *gateStore) CreateLicense(_ context.Context, lic *license.License) error {
	s.lic = lic
	return nil
}

func (s *gateStore) ConsumeValidation(_ context.Context, key string) (*license.License, error) {
	if s.lic == nil || s.lic.LicenseKey != key {
		return nil, nil
	}
	if s.lic.ValidationCount >= s.lic.MaxValidations {
		return nil, nil
	}
	s.lic.ValidationCount++
	cp := *s.lic
	return &cp, nil
}

type gateFingerprinter struct{}

func (gateFingerprinter) Fingerprint(context.Context) *license.HardwareInfo {
	return &license.HardwareInfo{HardwareID: "gate-hw", MachineName: "gate-machine"}
}

func validatedManager(t *testing.T, features map[string]bool) *license.Manager {
	t.Helper()

	store := &gateStore{}
	signer := license.NewSigner("gate-secret")
	mgr := license.NewManager(store, signer, gateFingerprinter{}, zerolog.Nop())

	key, err := mgr.Create(context.Background(), license.CreateParams{
		ClientName: "Restaurante Teste",
		HardwareID: "gate-hw",
		Days:       30,
		Features:   features,
	})
	if err != nil {
		t.Fatalf("create license: %v", err)
	}
	store.lic.MaxValidations = 100

	result, err := mgr.Validate(context.Background(), key)
	if err != nil {
		t.Fatalf("validate license: %v", err)
	}
	if !result.Valid {
		t.Fatalf("expected valid license, got %q", result.Message)
	}
	return mgr
}

func gatedRouter(mgr *license.Manager, feature string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/reports", FeatureGate(mgr, feature, zerolog.Nop()), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r
}

func TestFeatureGate_Enabled(t *testing.T) {
	mgr := validatedManager(t, map[string]bool{"reports": true})
	r := gatedRouter(mgr, "reports")

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/reports", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
}

func TestFeatureGate_Disabled(t *testing.T) {
	mgr := validatedManager(t, map[string]bool{"reports": false})
	r := gatedRouter(mgr, "reports")

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/reports", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("expected status 402, got %d", w.Code)
	}
}

func TestFeatureGate_NoValidatedLicense(t *testing.T) {
	store := &gateStore{}
	mgr := license.NewManager(store, license.NewSigner("gate-secret"), gateFingerprinter{}, zerolog.Nop())
	r := gatedRouter(mgr, "reports")

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/reports", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("expected status 402 without a validated license, got %d", w.Code)
	}
}

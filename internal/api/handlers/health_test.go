package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// mockDB implements DatabaseHealthChecker.
type mockDB struct {
	pingErr error
}

func (m *mockDB) Ping(_ context.Context) error {
	return m.pingErr
}

func (m *mockDB) Health() map[string]any {
	return map[string]any{"total_conns": 3}
}

func healthRouter(db *mockDB) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHealthHandler(db, zerolog.Nop()).RegisterPublicRoutes(r)
	return r
}

func TestHealth_Healthy(t *testing.T) {
	r := healthRouter(&mockDB{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != HealthStatusHealthy {
		t.Errorf("expected healthy status, got %q", resp.Status)
	}
	if resp.Checks["database"] == nil || resp.Checks["database"].Status != HealthStatusHealthy {
		t.Error("expected healthy database check")
	}
}

func TestHealth_DatabaseDown(t *testing.T) {
	r := healthRouter(&mockDB{pingErr: errors.New("connection refused")})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", w.Code)
	}

	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != HealthStatusUnhealthy {
		t.Errorf("expected unhealthy status, got %q", resp.Status)
	}
}

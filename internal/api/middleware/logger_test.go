package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func TestRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mw := RequestLogger(zerolog.Nop())

	r := gin.New()
	r.Use(mw)
	r.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	r.GET("/error", func(c *gin.Context) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "fail"})
	})

	t.Run("successful request", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/test?q=hello", nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}
	})

	t.Run("server error request", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/error", nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusInternalServerError {
			t.Fatalf("expected status 500, got %d", w.Code)
		}
	})
}

func TestRedactQueryString(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"no sensitive params", "action=validate&page=2", "action=validate&page=2"},
		{"license key redacted", "key=abc123", "key=%5BREDACTED%5D"},
		{"mixed case redacted", "KEY=abc123", "KEY=%5BREDACTED%5D"},
		{"token redacted", "token=secret", "token=%5BREDACTED%5D"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := redactQueryString(tt.input); got != tt.want {
				t.Errorf("redactQueryString(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRedactQueryString_MixedParams(t *testing.T) {
	got := redactQueryString("action=validate&key=deadbeef")
	if got == "action=validate&key=deadbeef" {
		t.Fatal("license key left unredacted")
	}
	if want := "action=validate&key=%5BREDACTED%5D"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

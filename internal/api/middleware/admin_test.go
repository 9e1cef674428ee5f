package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func adminRouter(token string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AdminAuth(token))
	r.POST("/admin", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r
}

func TestAdminAuth_ValidToken(t *testing.T) {
	r := adminRouter("hunter2")

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/admin", nil)
	req.Header.Set("Authorization", "Bearer hunter2")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
}

func TestAdminAuth_InvalidToken(t *testing.T) {
	r := adminRouter("hunter2")

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/admin", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", w.Code)
	}
}

func TestAdminAuth_MissingHeader(t *testing.T) {
	r := adminRouter("hunter2")

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/admin", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", w.Code)
	}
}

func TestAdminAuth_MalformedHeader(t *testing.T) {
	r := adminRouter("hunter2")

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/admin", nil)
	req.Header.Set("Authorization", "hunter2")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", w.Code)
	}
}

func TestAdminAuth_EmptyTokenDisablesGuard(t *testing.T) {
	r := adminRouter("")

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/admin", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200 with guard disabled, got %d", w.Code)
	}
}

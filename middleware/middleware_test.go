package middleware

import (
	"net/http"
	"strings"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

const testSecret = "test-secret"

func newProtectedEcho() *echo.Echo {
	e := echo.New()
	g := e.Group("/api", JWTMiddleware(testSecret))
	g.GET("/me", func(c echo.Context) error {
		return c.String(http.StatusOK, GetUserIDFromToken(c)+"|"+ExtractUserType(c))
	})
	g.GET("/admin", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}, RequireUserType("admin", "system"))
	return e
}

func TestJWTMiddleware(t *testing.T) {
	t.Parallel()
	e := newProtectedEcho()

	token, err := GenerateJWT(testSecret, "user-1", "a@example.com", "employee", time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT() error = %v", err)
	}

	t.Run("bearer header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if got := rec.Body.String(); got != "user-1|employee" {
			t.Errorf("body = %q", got)
		}
	})

	t.Run("session cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		req.AddCookie(&http.Cookie{Name: "token", Value: token})
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("missing token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		forged, _ := GenerateJWT("other", "user-1", "", "employee", time.Hour)
		req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+forged)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("expired token", func(t *testing.T) {
		claims := JwtCustomClaims{UserID: "user-1"}
		claims.ExpiresAt = time.Now().Add(-time.Minute).Unix()
		if err := claims.Valid(); err == nil {
			t.Error("expected expired claims to be invalid")
		}
	})
}

func TestRequireUserType(t *testing.T) {
	t.Parallel()
	e := newProtectedEcho()

	tests := []struct {
		userType string
		want     int
	}{
		{"system", http.StatusOK},
		{"admin", http.StatusOK},
		{"employee", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.userType, func(t *testing.T) {
			token, _ := GenerateJWT(testSecret, "u", "", tt.userType, 0)
			req := httptest.NewRequest(http.MethodGet, "/api/admin", nil)
			req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestRateLimiterBlocksBurst(t *testing.T) {
	t.Parallel()

	limiter := NewRateLimiter()
	e := echo.New()
	e.Use(limiter.RateLimit())
	e.GET("/api/ws", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	var last int
	for i := 0; i < 11; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/ws", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("11th handshake status = %d, want 429", last)
	}

	// Another address is unaffected
	req := httptest.NewRequest(http.MethodGet, "/api/ws", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("other address status = %d, want 200", rec.Code)
	}
}

func TestBuildCSP(t *testing.T) {
	got := buildCSP(SecurityConfig{ConnectSources: []string{"wss://push.example"}})
	want := "default-src 'none'; frame-ancestors 'none'; connect-src 'self' wss://push.example"
	if got != want {
		t.Errorf("buildCSP() = %q, want %q", got, want)
	}
}

func TestRequireJSON(t *testing.T) {
	t.Parallel()
	e := echo.New()
	e.POST("/", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	}, RequireJSON())

	tests := []struct {
		name        string
		contentType string
		body        string
		want        int
	}{
		{"json", "application/json", `{"a":1}`, http.StatusNoContent},
		{"json with charset", "application/json; charset=utf-8", `{}`, http.StatusNoContent},
		{"form", "application/x-www-form-urlencoded", "a=1", http.StatusUnsupportedMediaType},
		{"empty body", "", "", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set(echo.HeaderContentType, tt.contentType)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

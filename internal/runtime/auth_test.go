package runtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/NicholasJacob1990/iudex0-sub003/config"
)

func callWithAuth(t *testing.T, secret []byte, decorate func(*http.Request)) error {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if decorate != nil {
		decorate(req)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := EchoAuthMiddleware(secret)(func(c echo.Context) error {
		uid, _ := c.Get("user_id").(string)
		if uid == "" {
			t.Fatalf("expected user_id on echo context")
		}
		sub, ok := SubjectFromContext(c.Request().Context())
		if !ok || sub != uid {
			t.Fatalf("expected subject %q on request context, got %q ok=%v", uid, sub, ok)
		}
		return c.String(http.StatusOK, uid)
	})
	return h(c)
}

func TestSignJWTAndMiddlewareRoundtrip(t *testing.T) {
	secret := []byte("test-secret")
	tok, err := SignJWT("user-123", secret, time.Hour)
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}

	err = callWithAuth(t, secret, func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+tok)
	})
	if err != nil {
		t.Fatalf("expected authenticated request to pass, got %v", err)
	}
}

func TestAuthMiddlewareAcceptsCookieToken(t *testing.T) {
	secret := []byte("test-secret")
	tok, err := SignJWT("user-cookie", secret, time.Hour)
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}

	err = callWithAuth(t, secret, func(req *http.Request) {
		req.AddCookie(&http.Cookie{Name: "auth", Value: tok})
	})
	if err != nil {
		t.Fatalf("expected cookie token to pass, got %v", err)
	}
}

func TestAuthMiddlewareRejectsBadTokens(t *testing.T) {
	secret := []byte("test-secret")
	wrong, err := SignJWT("user-123", []byte("other-secret"), time.Hour)
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}
	expired, err := SignJWT("user-123", secret, -time.Minute)
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}

	cases := []struct {
		name     string
		decorate func(*http.Request)
	}{
		{"missing token", nil},
		{"garbage token", func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer not-a-jwt")
		}},
		{"wrong secret", func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer "+wrong)
		}},
		{"expired token", func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer "+expired)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.decorate != nil {
				tc.decorate(req)
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			h := EchoAuthMiddleware(secret)(func(c echo.Context) error {
				t.Fatalf("handler must not run without a valid token")
				return nil
			})
			err := h(c)
			he, ok := err.(*echo.HTTPError)
			if !ok {
				t.Fatalf("expected echo HTTP error, got %v", err)
			}
			if he.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", he.Code)
			}
		})
	}
}

func TestLoadJWTSecret(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.JWTSecret = "from-config"
	secret, err := LoadJWTSecret(cfg)
	if err != nil {
		t.Fatalf("LoadJWTSecret: %v", err)
	}
	if string(secret) != "from-config" {
		t.Fatalf("expected config secret, got %q", secret)
	}

	cfg.Server.JWTSecret = ""
	t.Setenv("IUDEX_JWT_SECRET", "from-env")
	secret, err = LoadJWTSecret(cfg)
	if err != nil {
		t.Fatalf("LoadJWTSecret from env: %v", err)
	}
	if string(secret) != "from-env" {
		t.Fatalf("expected env secret, got %q", secret)
	}

	t.Setenv("IUDEX_JWT_SECRET", "")
	if _, err := LoadJWTSecret(cfg); err == nil {
		t.Fatal("expected error when no secret is configured")
	}
}

func TestSubjectFromContextMissing(t *testing.T) {
	if _, ok := SubjectFromContext(context.Background()); ok {
		t.Fatal("expected no subject on a bare context")
	}
	ctx := ContextWithSubject(context.Background(), "user-9")
	sub, ok := SubjectFromContext(ctx)
	if !ok || sub != "user-9" {
		t.Fatalf("expected stored subject, got %q ok=%v", sub, ok)
	}
}

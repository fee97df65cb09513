package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func signToken(t *testing.T, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString(testKey)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func runMiddleware(t *testing.T, mw echo.MiddlewareFunc, authHeader string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := func(c echo.Context) error {
		return c.String(http.StatusOK, UserIDFromContext(c.Request().Context()))
	}
	return rec, mw(h)(c)
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	mw := JWTMiddleware(JWTConfig{SigningKey: testKey})
	token := signToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "clinician-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Roles: []string{"physician"},
	})

	rec, err := runMiddleware(t, mw, "Bearer "+token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Body.String() != "clinician-1" {
		t.Errorf("expected subject clinician-1 in context, got %q", rec.Body.String())
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	mw := JWTMiddleware(JWTConfig{SigningKey: testKey})

	_, err := runMiddleware(t, mw, "")
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", httpErr.Code)
	}
}

func TestJWTMiddleware_BadSignature(t *testing.T) {
	mw := JWTMiddleware(JWTConfig{SigningKey: []byte("a completely different signing key")})
	token := signToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "clinician-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	_, err := runMiddleware(t, mw, "Bearer "+token)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", httpErr.Code)
	}
}

func TestJWTMiddleware_ExpiredToken(t *testing.T) {
	mw := JWTMiddleware(JWTConfig{SigningKey: testKey})
	token := signToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "clinician-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})

	_, err := runMiddleware(t, mw, "Bearer "+token)
	if err == nil {
		t.Fatal("expected error for expired token")
	}
}

func TestDevAuthMiddleware_Defaults(t *testing.T) {
	rec, err := runMiddleware(t, DevAuthMiddleware(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Body.String() != "dev-user" {
		t.Errorf("expected dev-user, got %q", rec.Body.String())
	}
}

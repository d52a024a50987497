package middleware

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	icuser "github.com/learnerfast/learnerfast/internal/pkg/usercontext"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims AccessClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func validClaims(sub string) AccessClaims {
	return AccessClaims{
		Email: "a@example.com",
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func newTestApp() *fiber.App {
	app := fiber.New()
	app.Use(Authenticate(testSecret))
	app.Get("/whoami", func(c *fiber.Ctx) error {
		return c.SendString(icuser.GetUserID(c))
	})
	app.Get("/private", RequireAuth, func(c *fiber.Ctx) error {
		return c.SendString("ok " + icuser.GetUserID(c))
	})
	return app
}

func TestParseAccessToken(t *testing.T) {
	good := signToken(t, testSecret, validClaims("user-1"))

	claims, err := ParseAccessToken("Bearer "+good, []byte(testSecret))
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "a@example.com", claims.Email)

	tests := []struct {
		name   string
		header string
	}{
		{"empty", ""},
		{"no scheme", good},
		{"wrong secret", "Bearer " + signToken(t, "other", validClaims("user-1"))},
		{"no subject", "Bearer " + signToken(t, testSecret, validClaims(""))},
		{"expired", "Bearer " + signToken(t, testSecret, AccessClaims{RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		}})},
		{"no expiry", "Bearer " + signToken(t, testSecret, AccessClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"}})},
		{"garbage", "Bearer not.a.jwt"},
	}
	for _, tt := range tests {
		if _, err := ParseAccessToken(tt.header, []byte(testSecret)); err == nil {
			t.Fatalf("%s: expected error", tt.name)
		}
	}
}

func TestRequireAuthRejectsAnonymous(t *testing.T) {
	app := newTestApp()

	resp, err := app.Test(httptest.NewRequest("GET", "/private", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestRequireAuthAcceptsValidToken(t *testing.T) {
	app := newTestApp()

	req := httptest.NewRequest("GET", "/private", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, validClaims("user-42")))
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "ok user-42", string(body))
}

func TestAuthenticateIgnoresInvalidToken(t *testing.T) {
	app := newTestApp()

	req := httptest.NewRequest("GET", "/whoami", nil)
	req.Header.Set("Authorization", "Bearer broken")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.Empty(t, string(body))
}

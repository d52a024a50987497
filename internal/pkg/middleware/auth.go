package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	icuser "github.com/learnerfast/learnerfast/internal/pkg/usercontext"
)

var (
	errMissingToken = errors.New("missing bearer token")
	errMissingSub   = errors.New("token has no subject")
)

// AccessClaims are the claims carried by the auth provider's access tokens.
type AccessClaims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Authenticate reads an optional HS256 bearer token and stores the caller in
// the user context. Requests without a valid token continue anonymously.
func Authenticate(secret string) fiber.Handler {
	key := []byte(secret)
	return func(c *fiber.Ctx) error {
		if len(key) == 0 {
			return c.Next()
		}
		claims, err := ParseAccessToken(c.Get(fiber.HeaderAuthorization), key)
		if err != nil {
			return c.Next()
		}
		icuser.Set(c, icuser.UserContext{
			UserID:     claims.Subject,
			Email:      claims.Email,
			Role:       claims.Role,
			IsLoggedIn: true,
		})
		return c.Next()
	}
}

// RequireAuth rejects anonymous API requests with a JSON 401.
func RequireAuth(c *fiber.Ctx) error {
	if !icuser.IsLoggedIn(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "login required",
		})
	}
	return c.Next()
}

// ParseAccessToken validates "Bearer <jwt>" against key.
func ParseAccessToken(header string, key []byte) (*AccessClaims, error) {
	raw := strings.TrimSpace(header)
	if len(raw) < 7 || !strings.EqualFold(raw[:7], "bearer ") {
		return nil, errMissingToken
	}
	raw = strings.TrimSpace(raw[7:])
	if raw == "" {
		return nil, errMissingToken
	}

	claims := &AccessClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errMissingSub
	}
	return claims, nil
}

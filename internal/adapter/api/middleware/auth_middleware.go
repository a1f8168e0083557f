package middleware

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"

	"bookmarket/pkg/errors"
	"bookmarket/pkg/logger"
)

const ContextUserID = "uid"

// TokenVerifier resolves an ID token to a user id.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (string, error)
}

type AuthMiddleware struct {
	verifier TokenVerifier
}

func NewAuthMiddleware(verifier TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
	}
}

// Authenticate requires an "Authorization: Bearer <token>" header.
func (m *AuthMiddleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			return errors.Unauthorized("Authorization header is required", nil)
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return errors.Unauthorized("Invalid authorization format", nil)
		}

		return m.verify(c, parts[1], next)
	}
}

// AuthenticateQuery reads the token from the "token" query parameter. Browsers cannot set headers
// on a WebSocket upgrade request.
func (m *AuthMiddleware) AuthenticateQuery(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := c.QueryParam("token")
		if token == "" {
			return errors.Unauthorized("Token query parameter is required", nil)
		}
		return m.verify(c, token, next)
	}
}

func (m *AuthMiddleware) verify(c echo.Context, token string, next echo.HandlerFunc) error {
	uid, err := m.verifier.VerifyToken(c.Request().Context(), token)
	if err != nil {
		logger.Debug("Token verification failed: %v", err)
		return errors.Unauthorized("Invalid or expired token", err)
	}

	c.Set(ContextUserID, uid)
	return next(c)
}

// UserID returns the authenticated user id set by AuthMiddleware.
func UserID(c echo.Context) string {
	uid, _ := c.Get(ContextUserID).(string)
	return uid
}

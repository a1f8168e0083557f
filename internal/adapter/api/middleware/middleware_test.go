package middleware

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookmarket/internal/infrastructure/ratelimit"
	"bookmarket/pkg/errors"
)

type stubVerifier map[string]string

func (s stubVerifier) VerifyToken(ctx context.Context, token string) (string, error) {
	uid, ok := s[token]
	if !ok {
		return "", stderrors.New("bad token")
	}
	return uid, nil
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, UserID(c))
}

func run(mw echo.MiddlewareFunc, req *http.Request) (*httptest.ResponseRecorder, error) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return rec, mw(okHandler)(c)
}

func TestAuthenticateHeader(t *testing.T) {
	m := NewAuthMiddleware(stubVerifier{"good": "u1"})

	tests := []struct {
		name   string
		header string
		uid    string
	}{
		{"missing header", "", ""},
		{"wrong scheme", "Basic good", ""},
		{"empty token", "Bearer ", ""},
		{"unknown token", "Bearer nope", ""},
		{"valid", "Bearer good", "u1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/chats", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			rec, err := run(m.Authenticate, req)

			if tt.uid == "" {
				assert.True(t, errors.Is(err, errors.CodeUnauthorized))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.uid, rec.Body.String())
		})
	}
}

func TestAuthenticateQuery(t *testing.T) {
	m := NewAuthMiddleware(stubVerifier{"good": "u2"})

	rec, err := run(m.AuthenticateQuery, httptest.NewRequest(http.MethodGet, "/ws?token=good", nil))
	require.NoError(t, err)
	assert.Equal(t, "u2", rec.Body.String())

	_, err = run(m.AuthenticateQuery, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.True(t, errors.Is(err, errors.CodeUnauthorized))
}

func TestRateLimitBlocksAfterBurst(t *testing.T) {
	limiter := ratelimit.NewRateLimiter(map[string]ratelimit.Policy{
		ratelimit.ActionAPI: {Burst: 1, Every: time.Minute},
	})
	mw := RateLimit(limiter, ratelimit.ActionAPI)

	_, err := run(mw, httptest.NewRequest(http.MethodGet, "/v1/chats", nil))
	require.NoError(t, err)

	rec, err := run(mw, httptest.NewRequest(http.MethodGet, "/v1/chats", nil))
	assert.True(t, errors.Is(err, errors.CodeTooManyRequests))
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

package firebase

import (
	"context"
	"errors"
	"strings"
)

const devTokenPrefix = "dev:"

// DevTokenVerifier accepts tokens of the form "dev:<uid>". It is only wired when the service runs
// on the in-memory store outside production.
type DevTokenVerifier struct{}

func (DevTokenVerifier) VerifyToken(ctx context.Context, token string) (string, error) {
	uid := strings.TrimPrefix(token, devTokenPrefix)
	if uid == token || uid == "" {
		return "", errors.New("not a development token")
	}
	return uid, nil
}

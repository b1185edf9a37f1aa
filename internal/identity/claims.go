package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingToken indicates an empty token string.
	ErrMissingToken = errors.New("identity: token required")
	// ErrMalformedToken indicates the token could not be parsed as a JWT.
	ErrMalformedToken = errors.New("identity: malformed token")
)

// TokenClaims is the subset of provider JWT claims the client reads. The
// client holds no verification key, so signatures are never checked here; the
// claims only drive local expiry bookkeeping and display.
type TokenClaims struct {
	Subject   string
	Email     string
	ExpiresAt time.Time
}

type providerClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// ParseTokenClaims extracts claims from a provider access token without
// verifying its signature.
func ParseTokenClaims(tokenString string) (TokenClaims, error) {
	token := strings.TrimSpace(tokenString)
	if token == "" {
		return TokenClaims{}, ErrMissingToken
	}

	claims := &providerClaims{}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return TokenClaims{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	parsed := TokenClaims{
		Subject: strings.TrimSpace(claims.Subject),
		Email:   strings.TrimSpace(claims.Email),
	}
	if claims.ExpiresAt != nil {
		parsed.ExpiresAt = claims.ExpiresAt.Time
	}
	return parsed, nil
}

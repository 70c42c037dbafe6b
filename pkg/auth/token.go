package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/config"
)

// Admin tokens are HS256 only; anything else is rejected at parse time.
var signingMethod = jwt.SigningMethodHS256

var (
	ErrNotAdmin      = errors.New("token does not carry the admin role")
	errMissingSecret = errors.New("admin jwt secret is required")
)

// MintAdminToken signs an admin token for subject that expires cfg.TokenTTL
// after now. It backs operator tooling and tests; the API never mints.
func MintAdminToken(cfg config.AdminAuthConfig, now time.Time, subject string) (string, error) {
	subject = strings.TrimSpace(subject)
	switch {
	case cfg.Secret == "":
		return "", errMissingSecret
	case cfg.Issuer == "":
		return "", errors.New("admin jwt issuer is required")
	case cfg.TokenTTL <= 0:
		return "", errors.New("admin token ttl must be positive")
	case subject == "":
		return "", errors.New("admin token subject is required")
	}

	signed, err := jwt.NewWithClaims(signingMethod, AdminClaims{
		Role: AdminRole,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    cfg.Issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TokenTTL)),
		},
	}).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign admin token: %w", err)
	}
	return signed, nil
}

// ParseAdminToken returns the claims of a valid admin token. The token must
// be signed with cfg.Secret, issued by cfg.Issuer, unexpired, and carry the
// admin role.
func ParseAdminToken(cfg config.AdminAuthConfig, raw string) (*AdminClaims, error) {
	if cfg.Secret == "" {
		return nil, errMissingSecret
	}

	var claims AdminClaims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
	)
	if _, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	}); err != nil {
		return nil, err
	}
	if claims.Role != AdminRole {
		return nil, ErrNotAdmin
	}
	return &claims, nil
}

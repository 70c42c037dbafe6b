package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/angelmondragon/storefront-backend/pkg/config"
)

func testConfig() config.AdminAuthConfig {
	return config.AdminAuthConfig{Secret: "secret", Issuer: "storefront", TokenTTL: 30 * time.Minute}
}

func TestMintAndParseAdminToken(t *testing.T) {
	cfg := testConfig()
	now := time.Now().UTC()

	token, err := MintAdminToken(cfg, now, "ops@storefront")
	if err != nil {
		t.Fatalf("mint admin token: %v", err)
	}
	claims, err := ParseAdminToken(cfg, token)
	if err != nil {
		t.Fatalf("parse admin token: %v", err)
	}
	if claims.Subject != "ops@storefront" || claims.Role != AdminRole {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if claims.Issuer != cfg.Issuer {
		t.Fatalf("expected issuer %s, got %s", cfg.Issuer, claims.Issuer)
	}

	diff := claims.ExpiresAt.Sub(now.Add(cfg.TokenTTL))
	if diff < 0 {
		diff = -diff
	}
	if diff >= time.Second {
		t.Fatalf("unexpected expiry %v", claims.ExpiresAt.UTC())
	}
}

func TestParseAdminTokenInvalidSignature(t *testing.T) {
	cfg := testConfig()
	token, err := MintAdminToken(cfg, time.Now(), "ops")
	if err != nil {
		t.Fatalf("mint admin token: %v", err)
	}
	if _, err := ParseAdminToken(cfg, token+"x"); err == nil {
		t.Fatal("expected invalid signature error")
	}

	other := cfg
	other.Secret = "another"
	if _, err := ParseAdminToken(other, token); err == nil {
		t.Fatal("expected token signed with another secret to fail")
	}
}

func TestParseAdminTokenExpired(t *testing.T) {
	cfg := testConfig()
	token, err := MintAdminToken(cfg, time.Now().Add(-time.Hour), "ops")
	if err != nil {
		t.Fatalf("mint admin token: %v", err)
	}
	_, err = ParseAdminToken(cfg, token)
	if err == nil || !strings.Contains(err.Error(), "expired") {
		t.Fatalf("expected expiration error, got %v", err)
	}
}

func TestParseAdminTokenRequiresRole(t *testing.T) {
	cfg := testConfig()
	claims := AdminClaims{
		Role: "shopper",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ParseAdminToken(cfg, token); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("expected ErrNotAdmin, got %v", err)
	}
}

func TestMintAdminTokenValidatesInput(t *testing.T) {
	cfg := testConfig()
	if _, err := MintAdminToken(cfg, time.Now(), " "); err == nil {
		t.Fatal("expected missing subject error")
	}
	cfg.TokenTTL = 0
	if _, err := MintAdminToken(cfg, time.Now(), "ops"); err == nil {
		t.Fatal("expected ttl error")
	}
}

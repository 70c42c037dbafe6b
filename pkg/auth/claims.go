// Package auth mints and verifies the bearer tokens that guard admin routes.
package auth

import "github.com/golang-jwt/jwt/v5"

// AdminRole is the only role an admin token may carry.
const AdminRole = "admin"

// AdminClaims is the typed JWT presented on admin routes. Subject names the
// operator for audit logs.
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

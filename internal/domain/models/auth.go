package models

import "github.com/golang-jwt/jwt/v5"

// Claims is the JWT claims structure issued by the identity provider.
type Claims struct {
	jwt.RegisteredClaims        // Standard JWT claims (sub, iss, aud, exp, iat, etc.)
	Email                string `json:"email"`
	Role                 string `json:"role"` // "authenticated", "admin" or "anon"
}

// GetActorID returns the actor ID from the JWT subject claim.
func (c *Claims) GetActorID() string {
	return c.Subject
}

// IsAdmin reports whether the claims carry merge authority.
func (c *Claims) IsAdmin() bool {
	return c.Role == "admin"
}

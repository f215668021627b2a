package sessionx

import "time"

// Claims is a read-only view of a session token payload. It is decoded
// without signature verification and must never drive access decisions.
type Claims struct {
	Subject   string
	Issuer    string
	ExpiresAt time.Time
	IssuedAt  time.Time

	Username     string
	Nickname     string
	Email        string
	CustomClaims map[string]any
}

// Expires reports whether the token declares an expiry instant.
func (c *Claims) Expires() bool {
	return c != nil && !c.ExpiresAt.IsZero()
}

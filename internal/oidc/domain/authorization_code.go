package domain

import "time"

// AuthorizationCode is a one-time exchange token for the authorization-code
// grant. The code value itself is persisted only as a fingerprint.
type AuthorizationCode struct {
	ID          string
	ClientID    string
	UserID      string
	CodeHash    string
	RedirectURI string // the redirect URI the code was issued for
	Nonce       string // optional OIDC replay-protection value
	TTLSeconds  int
	Revoked     bool
	RevokedAt   *time.Time
	CreatedAt   time.Time
}

// ExpiresAt computes the expiry instant from creation time and TTL.
func (c AuthorizationCode) ExpiresAt() time.Time {
	return c.CreatedAt.Add(time.Duration(c.TTLSeconds) * time.Second)
}

// Expired reports whether the code has passed its TTL. Flipping the revoked
// flag on expiry is the store's job, done transactionally at check time.
func (c AuthorizationCode) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt())
}

package domain

import "time"

// Token is a persisted access/refresh bearer pair. Both values share one
// lifecycle: a single revoked flag covers the pair.
type Token struct {
	ID          string
	ClientID    string
	UserID      string
	AccessHash  string
	RefreshHash string
	TTLSeconds  int
	Revoked     bool
	RevokedAt   *time.Time
	CreatedAt   time.Time
}

// ExpiresAt computes the expiry instant from creation time and TTL.
func (t Token) ExpiresAt() time.Time {
	return t.CreatedAt.Add(time.Duration(t.TTLSeconds) * time.Second)
}

// Expired reports whether the pair has passed its TTL.
func (t Token) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt())
}

// TokenPair is what the token endpoint returns: the freshly minted opaque
// values, which are never recoverable from the store afterwards.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int // seconds until the access token expires
	Record       Token
}

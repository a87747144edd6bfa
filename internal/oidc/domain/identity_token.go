package domain

import "time"

// IdentityToken is the signed assertion of end-user identity (OIDC ID Token).
// The issuance record is persisted for audit; the token itself is serialized
// to its compact signed form on demand and never redeemed against the store.
type IdentityToken struct {
	ID        string
	ClientID  string
	Issuer    string
	Subject   string // end-user identifier
	Audience  string // the client's public identifier
	Nonce     string
	IssuedAt  time.Time
	ExpiresAt time.Time // always IssuedAt + fixed validity window
	Revoked   bool
	RevokedAt *time.Time
}

// Expired reports whether the token has passed its validity window.
func (t IdentityToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

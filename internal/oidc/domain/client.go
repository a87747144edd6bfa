package domain

import (
	"slices"
	"time"
)

// Client is a registered relying party.
type Client struct {
	ID        string
	Name      string // unique display name
	ClientID  string // public client identifier, unique
	Secret    string // PBKDF2 derivation of the secret, never the plaintext
	Salt      string // base64, immutable once assigned at creation
	CertSalt  string // optional certificate salt
	Scopes    []string
	Revoked   bool
	RevokedAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasScopes reports whether every requested scope is present in the client's
// granted scope set. Matching is exact and case-sensitive.
func (c Client) HasScopes(requested []string) bool {
	for _, s := range requested {
		if !slices.Contains(c.Scopes, s) {
			return false
		}
	}
	return true
}

// RedirectURI is a whitelisted callback endpoint for a client. URI values are
// unique across all clients, not just per client.
type RedirectURI struct {
	ID        string
	ClientID  string
	URI       string
	CreatedAt time.Time
}

package store

import (
	"context"
	"errors"
	"time"

	"github.com/openledger/oidcd/internal/oidc/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite for now)
// implement this. It exposes sub-repositories to keep concerns tidy and
// testable, and a transaction entry point for multi-step operations that must
// be atomic (code redemption, refresh rotation).
type Store interface {
	Clients() Clients
	RedirectURIs() RedirectURIs
	AuthorizationCodes() AuthorizationCodes
	Tokens() Tokens
	IdentityTokens() IdentityTokens

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Clients interface {
	// GetClientByID fetches a client by its row identifier.
	GetClientByID(ctx context.Context, id string) (domain.Client, error)

	// GetClientByClientID fetches a client by its public identifier,
	// including revoked clients. Callers decide how revocation surfaces.
	GetClientByClientID(ctx context.Context, clientID string) (domain.Client, error)

	// GetClientByName fetches a client by its unique display name.
	GetClientByName(ctx context.Context, name string) (domain.Client, error)

	// CreateClient inserts a new client. Returns ErrAlreadyExists when the
	// name or public identifier is taken.
	CreateClient(ctx context.Context, c domain.Client) error

	// UpdateClientSecret replaces the stored secret derivation and bumps
	// updated_at. The salt is immutable and not touched.
	UpdateClientSecret(ctx context.Context, id, secret string) error

	// RevokeClient sets the terminal revoked flag and its timestamp.
	RevokeClient(ctx context.Context, id string, at time.Time) error

	// UnrevokeClient clears the revoked flag and its timestamp.
	UnrevokeClient(ctx context.Context, id string) error
}

type RedirectURIs interface {
	// CreateRedirectURI registers a callback endpoint. URIs are unique across
	// all clients; duplicates return ErrAlreadyExists.
	CreateRedirectURI(ctx context.Context, u domain.RedirectURI) error

	// GetRedirectURI resolves a URI belonging to the given client.
	GetRedirectURI(ctx context.Context, clientRowID, uri string) (domain.RedirectURI, error)
}

type AuthorizationCodes interface {
	// CreateAuthorizationCode stores a freshly minted code record. Returns
	// ErrAlreadyExists on a fingerprint collision.
	CreateAuthorizationCode(ctx context.Context, c domain.AuthorizationCode) error

	// GetAuthorizationCodeByHash fetches a code by its fingerprint.
	GetAuthorizationCodeByHash(ctx context.Context, hash string) (domain.AuthorizationCode, error)

	// RevokeAuthorizationCode flips revoked on a not-yet-revoked code.
	// Returns ErrNotFound when the code is missing or already revoked, which
	// is what serializes concurrent redemption attempts.
	RevokeAuthorizationCode(ctx context.Context, id string, at time.Time) error

	// DeleteAuthorizationCodesBefore removes revoked codes whose expiry
	// passed before the cutoff. Housekeeping only.
	DeleteAuthorizationCodesBefore(ctx context.Context, cutoff time.Time) error
}

type Tokens interface {
	// CreateToken stores a new access/refresh pair record. Returns
	// ErrAlreadyExists on a fingerprint collision.
	CreateToken(ctx context.Context, t domain.Token) error

	// GetTokenByAccessHash fetches a pair by the access value fingerprint.
	GetTokenByAccessHash(ctx context.Context, hash string) (domain.Token, error)

	// GetTokenByRefreshHash fetches a pair by the refresh value fingerprint.
	GetTokenByRefreshHash(ctx context.Context, hash string) (domain.Token, error)

	// RevokeToken flips revoked on a not-yet-revoked pair. Returns
	// ErrNotFound when the pair is missing or already revoked.
	RevokeToken(ctx context.Context, id string, at time.Time) error

	// DeleteTokensBefore removes revoked pairs whose expiry passed before the
	// cutoff. Housekeeping only.
	DeleteTokensBefore(ctx context.Context, cutoff time.Time) error
}

type IdentityTokens interface {
	// CreateIdentityToken stores an issuance record for audit.
	CreateIdentityToken(ctx context.Context, t domain.IdentityToken) error

	// DeleteIdentityTokensBefore removes records whose expiry passed before
	// the cutoff.
	DeleteIdentityTokensBefore(ctx context.Context, cutoff time.Time) error
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openledger/oidcd/internal/oidc/domain"
	"github.com/openledger/oidcd/internal/oidc/store"
	"github.com/openledger/oidcd/pkg/cryptox"
	"github.com/openledger/oidcd/pkg/idx"
	"github.com/openledger/oidcd/pkg/slogx"
)

// DefaultAccessTTL is how long an access token stays valid.
const DefaultAccessTTL = 3600 * time.Second

// TokenService mints, refreshes, validates, and revokes access/refresh token
// pairs. The two tokens of a pair share one stored record and one lifecycle:
// revoking the record kills both.
type TokenService struct {
	Store     store.Store
	AccessTTL time.Duration
}

func (s *TokenService) accessTTL() time.Duration {
	if s.AccessTTL > 0 {
		return s.AccessTTL
	}
	return DefaultAccessTTL
}

// IssueFromCode mints a token pair for a client after code redemption. Only
// the fingerprints are stored; the plaintext pair goes back to the caller
// once and is never retrievable again.
func (s *TokenService) IssueFromCode(
	ctx context.Context,
	client domain.Client,
	code domain.AuthorizationCode,
) (domain.TokenPair, error) {
	return s.mint(ctx, s.Store.Tokens(), client, code.UserID)
}

// Refresh rotates a token pair: the presented refresh token's record is
// revoked and a fresh pair minted for the same client and user, atomically.
// A losing concurrent refresh of the same token gets ErrInvalidGrant.
func (s *TokenService) Refresh(
	ctx context.Context,
	client domain.Client,
	refreshToken string,
) (domain.TokenPair, error) {
	hash := cryptox.FingerprintToken(refreshToken)
	now := time.Now().UTC()

	// Revoke-old and mint-new share one transaction: a failed mint rolls the
	// revoke back, so the presented pair stays usable after a transient error.
	var pair domain.TokenPair
	var expired bool
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		found, err := tx.Tokens().GetTokenByRefreshHash(ctx, hash)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidGrant
			}
			return err
		}
		if found.ClientID != client.ID || found.Revoked {
			return ErrInvalidGrant
		}
		if found.Expired(now) {
			// Returning nil commits the lazy flip; the grant failure is
			// mapped after the transaction.
			expired = true
			if err := tx.Tokens().RevokeToken(ctx, found.ID, now); err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
			return nil
		}
		if err := tx.Tokens().RevokeToken(ctx, found.ID, now); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidGrant
			}
			return err
		}
		pair, err = s.mint(ctx, tx.Tokens(), client, found.UserID)
		return err
	})
	if err != nil {
		return domain.TokenPair{}, err
	}
	if expired {
		return domain.TokenPair{}, ErrInvalidGrant
	}

	slogx.FromContext(ctx).Info("token pair refreshed", "client_id", client.ClientID, "user_id", pair.Record.UserID)
	return pair, nil
}

// Validate resolves an access token to its record and owning client. Unknown,
// revoked, and expired tokens all fail with ErrInvalidGrant; an expired token
// is revoked in passing, so repeated validation of the same dead token stays
// idempotent.
func (s *TokenService) Validate(ctx context.Context, accessToken string) (domain.Token, domain.Client, error) {
	hash := cryptox.FingerprintToken(accessToken)
	now := time.Now().UTC()

	var record domain.Token
	var expired bool
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		found, err := tx.Tokens().GetTokenByAccessHash(ctx, hash)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidGrant
			}
			return err
		}
		if found.Revoked {
			return ErrInvalidGrant
		}
		if found.Expired(now) {
			// Returning nil commits the lazy flip; the grant failure is
			// mapped after the transaction.
			expired = true
			if err := tx.Tokens().RevokeToken(ctx, found.ID, now); err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
			return nil
		}
		record = found
		return nil
	})
	if err != nil {
		return domain.Token{}, domain.Client{}, err
	}
	if expired {
		return domain.Token{}, domain.Client{}, ErrInvalidGrant
	}

	client, err := s.Store.Clients().GetClientByID(ctx, record.ClientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Token{}, domain.Client{}, ErrInvalidGrant
		}
		return domain.Token{}, domain.Client{}, err
	}
	if client.Revoked {
		return domain.Token{}, domain.Client{}, ErrInvalidGrant
	}
	return record, client, nil
}

// Revoke kills a token pair by either of its tokens. Revoking an already
// revoked pair is a no-op.
func (s *TokenService) Revoke(ctx context.Context, token string) error {
	hash := cryptox.FingerprintToken(token)
	now := time.Now().UTC()

	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		found, err := tx.Tokens().GetTokenByAccessHash(ctx, hash)
		if errors.Is(err, store.ErrNotFound) {
			found, err = tx.Tokens().GetTokenByRefreshHash(ctx, hash)
		}
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidGrant
			}
			return err
		}
		if found.Revoked {
			return nil
		}
		err = tx.Tokens().RevokeToken(ctx, found.ID, now)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	})
}

func (s *TokenService) mint(ctx context.Context, tokens store.Tokens, client domain.Client, userID string) (domain.TokenPair, error) {
	l := slogx.FromContext(ctx)
	ttl := s.accessTTL()

	for attempt := 0; ; attempt++ {
		access, err := cryptox.NewClientToken(client.ClientID)
		if err != nil {
			return domain.TokenPair{}, err
		}
		refresh, err := cryptox.NewClientToken(client.ClientID)
		if err != nil {
			return domain.TokenPair{}, err
		}

		record := domain.Token{
			ID:          idx.New().String(),
			ClientID:    client.ID,
			UserID:      userID,
			AccessHash:  cryptox.FingerprintToken(access),
			RefreshHash: cryptox.FingerprintToken(refresh),
			TTLSeconds:  int(ttl.Seconds()),
			CreatedAt:   time.Now().UTC(),
		}

		err = tokens.CreateToken(ctx, record)
		if err == nil {
			return domain.TokenPair{
				AccessToken:  access,
				RefreshToken: refresh,
				ExpiresIn:    int(ttl.Seconds()),
				Record:       record,
			}, nil
		}
		if !errors.Is(err, store.ErrAlreadyExists) {
			return domain.TokenPair{}, err
		}
		if attempt+1 >= maxGenerateRetries {
			return domain.TokenPair{}, fmt.Errorf("token collision persisted after %d attempts: %w", maxGenerateRetries, err)
		}
		l.Warn("token collision, regenerating", "attempt", attempt+1)
	}
}

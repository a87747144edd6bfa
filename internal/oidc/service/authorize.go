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

// DefaultCodeTTL is how long an authorization code stays redeemable.
const DefaultCodeTTL = 600 * time.Second

// AuthorizeService mints and redeems one-time authorization codes.
type AuthorizeService struct {
	Store   store.Store
	CodeTTL time.Duration
}

func (s *AuthorizeService) codeTTL() time.Duration {
	if s.CodeTTL > 0 {
		return s.CodeTTL
	}
	return DefaultCodeTTL
}

// Issue mints a fresh single-use code bound to the client, the authenticated
// user, and the already-verified redirect URI. The plaintext code is returned
// for redirection; only its fingerprint is stored.
func (s *AuthorizeService) Issue(
	ctx context.Context,
	client domain.Client,
	userID string,
	redirectURI string,
	nonce string,
) (string, domain.AuthorizationCode, error) {
	l := slogx.FromContext(ctx)
	ttl := s.codeTTL()

	for attempt := 0; ; attempt++ {
		code, err := cryptox.NewClientToken(client.ClientID)
		if err != nil {
			return "", domain.AuthorizationCode{}, err
		}

		record := domain.AuthorizationCode{
			ID:          idx.New().String(),
			ClientID:    client.ID,
			UserID:      userID,
			CodeHash:    cryptox.FingerprintToken(code),
			RedirectURI: redirectURI,
			Nonce:       nonce,
			TTLSeconds:  int(ttl.Seconds()),
			CreatedAt:   time.Now().UTC(),
		}

		err = s.Store.AuthorizationCodes().CreateAuthorizationCode(ctx, record)
		if err == nil {
			l.Info("authorization code issued", "client_id", client.ClientID, "user_id", userID)
			return code, record, nil
		}
		if !errors.Is(err, store.ErrAlreadyExists) {
			return "", domain.AuthorizationCode{}, err
		}
		if attempt+1 >= maxGenerateRetries {
			return "", domain.AuthorizationCode{}, fmt.Errorf("authorization code collision persisted after %d attempts: %w", maxGenerateRetries, err)
		}
		l.Warn("authorization code collision, regenerating", "attempt", attempt+1)
	}
}

// Redeem consumes a code exactly once. An unknown, already-revoked, or
// expired code fails with ErrInvalidGrant; a code bound to a different client
// than the one presenting it also fails with ErrInvalidGrant so probing
// cannot distinguish the cases. Expired codes are revoked in passing.
//
// The revocation runs inside a transaction guarded on the unrevoked row, so
// two concurrent redemptions of the same code resolve to exactly one winner.
func (s *AuthorizeService) Redeem(
	ctx context.Context,
	client domain.Client,
	code string,
) (domain.AuthorizationCode, error) {
	hash := cryptox.FingerprintToken(code)
	now := time.Now().UTC()

	var record domain.AuthorizationCode
	var expired bool
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		found, err := tx.AuthorizationCodes().GetAuthorizationCodeByHash(ctx, hash)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidGrant
			}
			return err
		}
		if found.ClientID != client.ID {
			return ErrInvalidGrant
		}
		if found.Revoked {
			return ErrInvalidGrant
		}
		if found.Expired(now) {
			// Flip the expired code to revoked while we hold it. Returning nil
			// commits the flip; the grant failure is mapped after the
			// transaction so the flip is not rolled back with it.
			expired = true
			if err := tx.AuthorizationCodes().RevokeAuthorizationCode(ctx, found.ID, now); err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
			return nil
		}

		// Single use: the guarded revoke loses (zero rows) if another
		// redemption got there first.
		if err := tx.AuthorizationCodes().RevokeAuthorizationCode(ctx, found.ID, now); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidGrant
			}
			return err
		}
		record = found
		return nil
	})
	if err != nil {
		return domain.AuthorizationCode{}, err
	}
	if expired {
		return domain.AuthorizationCode{}, ErrInvalidGrant
	}

	slogx.FromContext(ctx).Info("authorization code redeemed", "client_id", client.ClientID, "user_id", record.UserID)
	return record, nil
}

package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openledger/oidcd/internal/oidc/domain"
	"github.com/openledger/oidcd/internal/oidc/store"
	"github.com/openledger/oidcd/pkg/cryptox"
	"github.com/openledger/oidcd/pkg/idx"
)

func issueTestPair(t *testing.T, svc *TokenService, client domain.Client, userID string) domain.TokenPair {
	t.Helper()

	pair, err := svc.IssueFromCode(context.Background(), client, domain.AuthorizationCode{UserID: userID})
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.NotEqual(t, pair.AccessToken, pair.RefreshToken)
	return pair
}

func TestTokenIssueAndValidate(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	clients := &ClientService{Store: st}
	svc := &TokenService{Store: st}

	client, _ := registerTestClient(t, clients, "acme", []string{"openid"})
	pair := issueTestPair(t, svc, client, "alice")
	require.Equal(t, 3600, pair.ExpiresIn)

	record, owner, err := svc.Validate(ctx, pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "alice", record.UserID)
	require.Equal(t, client.ClientID, owner.ClientID)

	// The refresh token is not a valid access token.
	_, _, err = svc.Validate(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidGrant)
}

func TestTokenRefreshRotatesPair(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	clients := &ClientService{Store: st}
	svc := &TokenService{Store: st}

	client, _ := registerTestClient(t, clients, "acme", nil)
	pair := issueTestPair(t, svc, client, "alice")

	rotated, err := svc.Refresh(ctx, client, pair.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, "alice", rotated.Record.UserID)
	require.NotEqual(t, pair.AccessToken, rotated.AccessToken)
	require.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)

	// The old pair is dead in both halves.
	_, _, err = svc.Validate(ctx, pair.AccessToken)
	require.ErrorIs(t, err, ErrInvalidGrant)
	_, err = svc.Refresh(ctx, client, pair.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidGrant)

	// The new pair works.
	_, _, err = svc.Validate(ctx, rotated.AccessToken)
	require.NoError(t, err)
}

func TestTokenRefreshRejectsWrongClient(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	clients := &ClientService{Store: st}
	svc := &TokenService{Store: st}

	owner, _ := registerTestClient(t, clients, "acme", nil)
	intruder, _ := registerTestClient(t, clients, "globex", nil)

	pair := issueTestPair(t, svc, owner, "alice")

	_, err := svc.Refresh(ctx, intruder, pair.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidGrant)

	// The failed attempt must not have burned the pair.
	_, err = svc.Refresh(ctx, owner, pair.RefreshToken)
	require.NoError(t, err)
}

// brokenInsertStore fails every token insert; everything else passes through.
type brokenInsertStore struct {
	store.Store
}

func (s *brokenInsertStore) Tokens() store.Tokens {
	return brokenInsertTokens{s.Store.Tokens()}
}

func (s *brokenInsertStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		return fn(&brokenInsertTx{storeTx: tx})
	})
}

// storeTx aliases store.Tx so it can be embedded without the field name
// shadowing the promoted Tx() method from store.Store.
type storeTx = store.Tx

type brokenInsertTx struct {
	storeTx
}

func (t *brokenInsertTx) Tokens() store.Tokens {
	return brokenInsertTokens{t.storeTx.Tokens()}
}

type brokenInsertTokens struct {
	store.Tokens
}

func (brokenInsertTokens) CreateToken(context.Context, domain.Token) error {
	return errors.New("disk full")
}

func TestTokenRefreshRollsBackWhenMintFails(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	clients := &ClientService{Store: st}
	svc := &TokenService{Store: st}

	client, _ := registerTestClient(t, clients, "acme", nil)
	pair := issueTestPair(t, svc, client, "alice")

	broken := &TokenService{Store: &brokenInsertStore{Store: st}}
	_, err := broken.Refresh(ctx, client, pair.RefreshToken)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrInvalidGrant)

	// The failed rotation rolled back: the old pair still validates and a
	// later refresh against the healthy store succeeds.
	_, _, err = svc.Validate(ctx, pair.AccessToken)
	require.NoError(t, err)

	rotated, err := svc.Refresh(ctx, client, pair.RefreshToken)
	require.NoError(t, err)
	_, _, err = svc.Validate(ctx, rotated.AccessToken)
	require.NoError(t, err)
}

func TestTokenExpiryRevokesLazily(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	clients := &ClientService{Store: st}
	svc := &TokenService{Store: st}

	client, _ := registerTestClient(t, clients, "acme", nil)

	access := "stale-access"
	refresh := "stale-refresh"
	record := domain.Token{
		ID:          idx.New().String(),
		ClientID:    client.ID,
		UserID:      "alice",
		AccessHash:  cryptox.FingerprintToken(access),
		RefreshHash: cryptox.FingerprintToken(refresh),
		TTLSeconds:  60,
		CreatedAt:   time.Now().UTC().Add(-2 * time.Minute),
	}
	require.NoError(t, st.Tokens().CreateToken(ctx, record))

	_, _, err := svc.Validate(ctx, access)
	require.ErrorIs(t, err, ErrInvalidGrant)

	stored, err := st.Tokens().GetTokenByAccessHash(ctx, record.AccessHash)
	require.NoError(t, err)
	require.True(t, stored.Revoked, "expired token must be flipped to revoked on contact")

	// Validation of the now-revoked token is a stable failure, and the
	// revocation also killed the refresh half.
	_, _, err = svc.Validate(ctx, access)
	require.ErrorIs(t, err, ErrInvalidGrant)
	_, err = svc.Refresh(ctx, client, refresh)
	require.ErrorIs(t, err, ErrInvalidGrant)
}

func TestTokenRevokeByEitherHalf(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	clients := &ClientService{Store: st}
	svc := &TokenService{Store: st}

	client, _ := registerTestClient(t, clients, "acme", nil)

	pair := issueTestPair(t, svc, client, "alice")
	require.NoError(t, svc.Revoke(ctx, pair.AccessToken))
	_, _, err := svc.Validate(ctx, pair.AccessToken)
	require.ErrorIs(t, err, ErrInvalidGrant)

	// Revoking again is a no-op, not an error.
	require.NoError(t, svc.Revoke(ctx, pair.AccessToken))

	second := issueTestPair(t, svc, client, "bob")
	require.NoError(t, svc.Revoke(ctx, second.RefreshToken))
	_, _, err = svc.Validate(ctx, second.AccessToken)
	require.ErrorIs(t, err, ErrInvalidGrant)

	require.ErrorIs(t, svc.Revoke(ctx, "never-issued"), ErrInvalidGrant)
}

func TestTokenValidateRejectsRevokedClient(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	clients := &ClientService{Store: st}
	svc := &TokenService{Store: st}

	client, _ := registerTestClient(t, clients, "acme", nil)
	pair := issueTestPair(t, svc, client, "alice")

	require.NoError(t, clients.Revoke(ctx, client.ClientID))

	_, _, err := svc.Validate(ctx, pair.AccessToken)
	require.ErrorIs(t, err, ErrInvalidGrant)
}

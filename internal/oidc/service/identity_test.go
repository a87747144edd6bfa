package service

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestIdentityMintSignsWithClientSecret(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	clients := &ClientService{Store: st}
	svc := &IdentityService{Store: st, Issuer: "https://issuer.example"}

	client, secret := registerTestClient(t, clients, "acme", []string{"openid"})

	signed, err := svc.Mint(ctx, client, secret, "alice", "n-0S6_WzA2Mj")
	require.NoError(t, err)

	parsed, err := jwt.Parse(signed, func(tok *jwt.Token) (any, error) {
		require.Equal(t, jwt.SigningMethodHS256.Alg(), tok.Method.Alg())
		return []byte(secret), nil
	})
	require.NoError(t, err)
	require.True(t, parsed.Valid)

	claims := parsed.Claims.(jwt.MapClaims)
	require.Equal(t, "https://issuer.example", claims["iss"])
	require.Equal(t, "alice", claims["sub"])
	require.Equal(t, client.ClientID, claims["aud"])
	require.Equal(t, "n-0S6_WzA2Mj", claims["nonce"])

	iat := int64(claims["iat"].(float64))
	exp := int64(claims["exp"].(float64))
	require.Equal(t, int64(3600), exp-iat)

	// The wrong key must not verify.
	_, err = jwt.Parse(signed, func(tok *jwt.Token) (any, error) {
		return []byte("some-other-secret"), nil
	})
	require.Error(t, err)
}

func TestIdentityClaimsResolverCannotSpoofRegisteredClaims(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	clients := &ClientService{Store: st}

	resolver := ClaimsResolverFunc(func(ctx context.Context, userID string, scopes []string) (map[string]any, error) {
		return map[string]any{
			"name": "Alice Example",
			"iss":  "https://forged.example",
			"sub":  "mallory",
			"exp":  0,
		}, nil
	})
	svc := &IdentityService{Store: st, Issuer: "https://issuer.example", Resolver: resolver}

	client, _ := registerTestClient(t, clients, "acme", []string{"openid", "profile"})

	record, err := svc.Build(ctx, client, "alice", "")
	require.NoError(t, err)

	claims, err := svc.Claims(ctx, record, client.Scopes)
	require.NoError(t, err)

	require.Equal(t, "Alice Example", claims["name"], "profile claims pass through")
	require.Equal(t, "https://issuer.example", claims["iss"])
	require.Equal(t, "alice", claims["sub"])
	require.Equal(t, record.ExpiresAt.Unix(), claims["exp"])
	_, hasNonce := claims["nonce"]
	require.False(t, hasNonce, "empty nonce stays absent")
}

func TestIdentityBuildPersistsAuditRecord(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	clients := &ClientService{Store: st}
	svc := &IdentityService{Store: st, Issuer: "https://issuer.example", TTL: 30 * time.Minute}

	client, _ := registerTestClient(t, clients, "acme", nil)

	record, err := svc.Build(ctx, client, "alice", "abc")
	require.NoError(t, err)
	require.Equal(t, client.ID, record.ClientID)
	require.Equal(t, client.ClientID, record.Audience)
	require.Equal(t, 30*time.Minute, record.ExpiresAt.Sub(record.IssuedAt))
	require.False(t, record.Expired(record.IssuedAt))
	require.True(t, record.Expired(record.ExpiresAt))
}

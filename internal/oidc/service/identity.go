package service

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/openledger/oidcd/internal/oidc/domain"
	"github.com/openledger/oidcd/internal/oidc/store"
	"github.com/openledger/oidcd/pkg/idx"
	"github.com/openledger/oidcd/pkg/slogx"
)

// DefaultIdentityTTL is the validity window of a signed identity token.
const DefaultIdentityTTL = 3600 * time.Second

// ClaimsResolver supplies host-specific profile claims for a user. The
// engine never invents user attributes; it only merges what the host hands
// it, then stamps the registered claims on top.
type ClaimsResolver interface {
	ResolveClaims(ctx context.Context, userID string, scopes []string) (map[string]any, error)
}

// ClaimsResolverFunc adapts a plain function to the ClaimsResolver interface.
type ClaimsResolverFunc func(ctx context.Context, userID string, scopes []string) (map[string]any, error)

func (f ClaimsResolverFunc) ResolveClaims(ctx context.Context, userID string, scopes []string) (map[string]any, error) {
	return f(ctx, userID, scopes)
}

// IdentityService builds and signs identity tokens. Tokens are HMAC-signed
// with the requesting client's plaintext secret, so only a party holding
// that secret can verify them.
type IdentityService struct {
	Store    store.Store
	Issuer   string
	Resolver ClaimsResolver
	TTL      time.Duration
}

func (s *IdentityService) ttl() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return DefaultIdentityTTL
}

// Build persists the issuance record and returns it. The record is an audit
// trail only; verification of the emitted token is purely cryptographic.
func (s *IdentityService) Build(
	ctx context.Context,
	client domain.Client,
	userID string,
	nonce string,
) (domain.IdentityToken, error) {
	now := time.Now().UTC()
	record := domain.IdentityToken{
		ID:        idx.New().String(),
		ClientID:  client.ID,
		Issuer:    s.Issuer,
		Subject:   userID,
		Audience:  client.ClientID,
		Nonce:     nonce,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl()),
	}
	if err := s.Store.IdentityTokens().CreateIdentityToken(ctx, record); err != nil {
		return domain.IdentityToken{}, err
	}
	return record, nil
}

// Claims assembles the claim set for a record. Resolver-supplied claims go in
// first; the registered claims are stamped last and always win, so a resolver
// can never spoof issuer, subject, audience, or the time bounds.
func (s *IdentityService) Claims(ctx context.Context, record domain.IdentityToken, scopes []string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}

	if s.Resolver != nil {
		extra, err := s.Resolver.ResolveClaims(ctx, record.Subject, scopes)
		if err != nil {
			return nil, err
		}
		for k, v := range extra {
			claims[k] = v
		}
	}

	claims["iss"] = s.Issuer
	claims["sub"] = record.Subject
	claims["aud"] = record.Audience
	claims["iat"] = record.IssuedAt.Unix()
	claims["exp"] = record.ExpiresAt.Unix()
	if record.Nonce != "" {
		claims["nonce"] = record.Nonce
	}
	return claims, nil
}

// Sign serializes the claim set to a compact HS256 token keyed on the
// client's plaintext secret, which is only available at the token endpoint
// where the client just authenticated with it.
func (s *IdentityService) Sign(claims jwt.MapClaims, clientSecret string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(clientSecret))
}

// Mint is the full pipeline used by the token endpoint: persist the record,
// assemble claims, and sign.
func (s *IdentityService) Mint(
	ctx context.Context,
	client domain.Client,
	clientSecret string,
	userID string,
	nonce string,
) (string, error) {
	record, err := s.Build(ctx, client, userID, nonce)
	if err != nil {
		return "", err
	}
	claims, err := s.Claims(ctx, record, client.Scopes)
	if err != nil {
		return "", err
	}
	signed, err := s.Sign(claims, clientSecret)
	if err != nil {
		return "", err
	}
	slogx.FromContext(ctx).Info("identity token issued", "client_id", client.ClientID, "user_id", userID)
	return signed, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/openledger/oidcd/internal/oidc/domain"
	"github.com/openledger/oidcd/internal/oidc/store"
	"github.com/openledger/oidcd/pkg/cryptox"
	"github.com/openledger/oidcd/pkg/idx"
	"github.com/openledger/oidcd/pkg/slogx"
)

// Sentinel errors named after the OAuth2 wire codes they surface as.
var (
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrInvalidClient      = errors.New("invalid_client")
	ErrInvalidGrant       = errors.New("invalid_grant")
	ErrUnauthorizedClient = errors.New("unauthorized_client")
	ErrConfiguration      = errors.New("configuration_error")

	ErrDuplicateName = errors.New("client name already registered")
	ErrDuplicateURI  = errors.New("redirect uri already registered")
	ErrClientRevoked = errors.New("client is revoked")
)

// maxGenerateRetries bounds regeneration after a persistence-layer uniqueness
// conflict. Conflicts are exceptional for 256-bit identifiers; hitting the
// bound means something is wrong with the entropy source.
const maxGenerateRetries = 3

// ClientService is the single authority for client identity, credential
// verification, and scope authorization.
type ClientService struct {
	Store store.Store

	// Salt, when set, is the configured shared salt assigned to new clients.
	// When empty each client gets a freshly generated salt. Either way the
	// salt is validated against the storage contract before any secret is
	// derived, so misconfiguration fails at registration, not at verify time.
	Salt string
}

// Register creates a new client with generated identifier, salt, and secret.
// The plaintext secret is returned exactly once and never retrievable again.
func (s *ClientService) Register(
	ctx context.Context,
	name string,
	scopes []string,
	certSalt string,
) (domain.Client, string, error) {
	l := slogx.FromContext(ctx)

	if _, err := s.Store.Clients().GetClientByName(ctx, name); err == nil {
		return domain.Client{}, "", ErrDuplicateName
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.Client{}, "", err
	}

	salt := s.Salt
	if salt == "" {
		generated, err := cryptox.NewSalt()
		if err != nil {
			return domain.Client{}, "", err
		}
		salt = generated
	}
	if err := cryptox.ValidateSalt(salt); err != nil {
		return domain.Client{}, "", fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	plaintext, err := cryptox.NewIdentifier()
	if err != nil {
		return domain.Client{}, "", err
	}
	derived, err := cryptox.DeriveSecret(plaintext, salt)
	if err != nil {
		return domain.Client{}, "", fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	now := time.Now().UTC()
	client := domain.Client{
		ID:        idx.New().String(),
		Name:      name,
		Secret:    derived,
		Salt:      salt,
		CertSalt:  certSalt,
		Scopes:    scopes,
		CreatedAt: now,
		UpdatedAt: now,
	}

	for attempt := 0; ; attempt++ {
		client.ClientID, err = cryptox.NewIdentifier()
		if err != nil {
			return domain.Client{}, "", err
		}

		err = s.Store.Clients().CreateClient(ctx, client)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrAlreadyExists) {
			return domain.Client{}, "", err
		}
		// Name was pre-checked, so a conflict here is an identifier collision.
		if attempt+1 >= maxGenerateRetries {
			return domain.Client{}, "", fmt.Errorf("client identifier collision persisted after %d attempts: %w", maxGenerateRetries, err)
		}
		l.Warn("client identifier collision, regenerating", "name", name, "attempt", attempt+1)
	}

	l.Info("client registered", "client_id", client.ClientID, "name", name)
	return client, plaintext, nil
}

// RotateSecret generates a new plaintext secret for the client, stores its
// derivation, and returns the plaintext exactly once. The old secret stops
// verifying immediately.
func (s *ClientService) RotateSecret(ctx context.Context, clientID string) (string, error) {
	client, err := s.lookup(ctx, clientID)
	if err != nil {
		return "", err
	}

	plaintext, err := cryptox.NewIdentifier()
	if err != nil {
		return "", err
	}
	derived, err := cryptox.DeriveSecret(plaintext, client.Salt)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	if err := s.Store.Clients().UpdateClientSecret(ctx, client.ID, derived); err != nil {
		return "", err
	}

	slogx.FromContext(ctx).Info("client secret rotated", "client_id", clientID)
	return plaintext, nil
}

// LookupActive returns the client only if it is not revoked. Revoked clients
// are treated as non-existent for all protocol operations.
func (s *ClientService) LookupActive(ctx context.Context, clientID string) (domain.Client, error) {
	client, err := s.lookup(ctx, clientID)
	if err != nil {
		return domain.Client{}, err
	}
	if client.Revoked {
		return domain.Client{}, ErrInvalidClient
	}
	return client, nil
}

// VerifyCredentials looks up the client (including revoked, so callers can
// log a more useful failure) and compares the presented secret against the
// stored derivation.
func (s *ClientService) VerifyCredentials(ctx context.Context, clientID, secret string) (domain.Client, error) {
	client, err := s.lookup(ctx, clientID)
	if err != nil {
		return domain.Client{}, err
	}
	if client.Revoked {
		return domain.Client{}, ErrClientRevoked
	}
	if !cryptox.VerifySecret(secret, client.Salt, client.Secret) {
		slogx.FromContext(ctx).Info("client secret verification failed", "client_id", clientID)
		return domain.Client{}, ErrInvalidClient
	}
	return client, nil
}

// CheckScopes reports whether every requested scope is within the client's
// granted scope set (exact, case-sensitive match per scope token).
func (s *ClientService) CheckScopes(client domain.Client, requested []string) bool {
	return client.HasScopes(requested)
}

// ResolveRedirect percent-decodes the presented URI and resolves it among the
// client's registered callbacks. A failure here is fatal to the request: the
// caller must respond directly and never redirect to an unverified URI.
func (s *ClientService) ResolveRedirect(ctx context.Context, client domain.Client, uri string) (domain.RedirectURI, error) {
	decoded, err := url.PathUnescape(uri)
	if err != nil || decoded == "" {
		return domain.RedirectURI{}, ErrInvalidRequest
	}

	registered, err := s.Store.RedirectURIs().GetRedirectURI(ctx, client.ID, decoded)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.RedirectURI{}, ErrInvalidRequest
		}
		return domain.RedirectURI{}, err
	}
	return registered, nil
}

// RegisterRedirect whitelists a callback URI for the client. URIs are unique
// across all clients; re-registering the same URI, for any client, fails.
func (s *ClientService) RegisterRedirect(ctx context.Context, clientID, uri string) (domain.RedirectURI, error) {
	client, err := s.lookup(ctx, clientID)
	if err != nil {
		return domain.RedirectURI{}, err
	}

	record := domain.RedirectURI{
		ID:        idx.New().String(),
		ClientID:  client.ID,
		URI:       uri,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.Store.RedirectURIs().CreateRedirectURI(ctx, record); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.RedirectURI{}, ErrDuplicateURI
		}
		return domain.RedirectURI{}, err
	}
	return record, nil
}

// Revoke terminally disables the client for protocol operations.
func (s *ClientService) Revoke(ctx context.Context, clientID string) error {
	client, err := s.lookup(ctx, clientID)
	if err != nil {
		return err
	}
	return s.Store.Clients().RevokeClient(ctx, client.ID, time.Now().UTC())
}

// Unrevoke re-enables a revoked client and clears the revocation timestamp.
func (s *ClientService) Unrevoke(ctx context.Context, clientID string) error {
	client, err := s.lookup(ctx, clientID)
	if err != nil {
		return err
	}
	return s.Store.Clients().UnrevokeClient(ctx, client.ID)
}

func (s *ClientService) lookup(ctx context.Context, clientID string) (domain.Client, error) {
	client, err := s.Store.Clients().GetClientByClientID(ctx, clientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Client{}, ErrInvalidClient
		}
		return domain.Client{}, err
	}
	return client, nil
}

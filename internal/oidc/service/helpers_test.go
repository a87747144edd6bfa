package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openledger/oidcd/internal/oidc/domain"
	"github.com/openledger/oidcd/internal/oidc/store/drivers/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.ApplyMigrations())
	return st
}

// registerTestClient registers a client and returns it with its one-time
// plaintext secret.
func registerTestClient(t *testing.T, svc *ClientService, name string, scopes []string) (domain.Client, string) {
	t.Helper()

	client, secret, err := svc.Register(context.Background(), name, scopes, "")
	require.NoError(t, err)
	require.NotEmpty(t, secret)
	return client, secret
}

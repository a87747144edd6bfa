package sqlite

import (
	"context"
	"time"

	"github.com/openledger/oidcd/internal/oidc/domain"
)

type identityTokensRepo struct {
	db dbtx
}

func (r *identityTokensRepo) CreateIdentityToken(ctx context.Context, t domain.IdentityToken) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO id_tokens (id, client_id, issuer, sub, aud, nonce,
			issued_at, expires_at, revoked, revoked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ClientID, t.Issuer, t.Subject, t.Audience,
		mapStringNull(t.Nonce), t.IssuedAt, t.ExpiresAt,
		t.Revoked, mapOptionalTime(t.RevokedAt),
	)
	return mapConflict(err)
}

func (r *identityTokensRepo) DeleteIdentityTokensBefore(ctx context.Context, cutoff time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM id_tokens WHERE datetime(expires_at) < datetime(?)`, cutoff)
	return err
}

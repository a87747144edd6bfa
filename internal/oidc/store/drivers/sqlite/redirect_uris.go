package sqlite

import (
	"context"

	"github.com/openledger/oidcd/internal/oidc/domain"
)

type redirectURIsRepo struct {
	db dbtx
}

func (r *redirectURIsRepo) CreateRedirectURI(ctx context.Context, u domain.RedirectURI) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO redirect_uris (id, client_id, uri, created_at)
		VALUES (?, ?, ?, ?)`,
		u.ID, u.ClientID, u.URI, u.CreatedAt,
	)
	return mapConflict(err)
}

func (r *redirectURIsRepo) GetRedirectURI(ctx context.Context, clientRowID, uri string) (domain.RedirectURI, error) {
	var u domain.RedirectURI
	err := r.db.QueryRowContext(ctx, `
		SELECT id, client_id, uri, created_at
		FROM redirect_uris
		WHERE client_id = ? AND uri = ?`, clientRowID, uri,
	).Scan(&u.ID, &u.ClientID, &u.URI, &u.CreatedAt)
	if err != nil {
		return domain.RedirectURI{}, mapNotFound(err)
	}
	return u, nil
}

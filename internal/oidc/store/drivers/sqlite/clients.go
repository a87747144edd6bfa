package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/openledger/oidcd/internal/oidc/domain"
	"github.com/openledger/oidcd/internal/oidc/store"
)

type clientsRepo struct {
	db dbtx
}

const clientColumns = `id, name, client_id, secret, salt, cert_salt, scopes,
	revoked, revoked_at, created_at, updated_at`

func scanClient(row *sql.Row) (domain.Client, error) {
	var (
		c         domain.Client
		certSalt  sql.NullString
		scopes    string
		revokedAt sql.NullTime
	)
	err := row.Scan(
		&c.ID, &c.Name, &c.ClientID, &c.Secret, &c.Salt, &certSalt, &scopes,
		&c.Revoked, &revokedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return domain.Client{}, mapNotFound(err)
	}
	c.CertSalt = mapNullString(certSalt)
	c.Scopes = splitScopes(scopes)
	c.RevokedAt = mapNullTimePtr(revokedAt)
	return c, nil
}

func (r *clientsRepo) GetClientByID(ctx context.Context, id string) (domain.Client, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE id = ?`, id)
	return scanClient(row)
}

func (r *clientsRepo) GetClientByClientID(ctx context.Context, clientID string) (domain.Client, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE client_id = ?`, clientID)
	return scanClient(row)
}

func (r *clientsRepo) GetClientByName(ctx context.Context, name string) (domain.Client, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE name = ?`, name)
	return scanClient(row)
}

func (r *clientsRepo) CreateClient(ctx context.Context, c domain.Client) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO clients (id, name, client_id, secret, salt, cert_salt, scopes,
			revoked, revoked_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.ClientID, c.Secret, c.Salt, mapStringNull(c.CertSalt),
		joinScopes(c.Scopes), c.Revoked, mapOptionalTime(c.RevokedAt),
		c.CreatedAt, c.UpdatedAt,
	)
	return mapConflict(err)
}

func (r *clientsRepo) UpdateClientSecret(ctx context.Context, id, secret string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE clients SET secret = ?, updated_at = ? WHERE id = ?`,
		secret, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *clientsRepo) RevokeClient(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE clients SET revoked = 1, revoked_at = ?, updated_at = ? WHERE id = ?`,
		at, at, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *clientsRepo) UnrevokeClient(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE clients SET revoked = 0, revoked_at = NULL, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// requireRow converts a zero-row UPDATE into store.ErrNotFound.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/openledger/oidcd/internal/oidc/domain"
)

type tokensRepo struct {
	db dbtx
}

const tokenColumns = `id, client_id, user_id, access_hash, refresh_hash,
	expires_in, revoked, revoked_at, created_at`

func scanToken(row *sql.Row) (domain.Token, error) {
	var (
		t         domain.Token
		revokedAt sql.NullTime
	)
	err := row.Scan(&t.ID, &t.ClientID, &t.UserID, &t.AccessHash, &t.RefreshHash,
		&t.TTLSeconds, &t.Revoked, &revokedAt, &t.CreatedAt)
	if err != nil {
		return domain.Token{}, mapNotFound(err)
	}
	t.RevokedAt = mapNullTimePtr(revokedAt)
	return t, nil
}

func (r *tokensRepo) CreateToken(ctx context.Context, t domain.Token) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tokens (id, client_id, user_id, access_hash, refresh_hash,
			expires_in, revoked, revoked_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ClientID, t.UserID, t.AccessHash, t.RefreshHash,
		t.TTLSeconds, t.Revoked, mapOptionalTime(t.RevokedAt), t.CreatedAt,
	)
	return mapConflict(err)
}

func (r *tokensRepo) GetTokenByAccessHash(ctx context.Context, hash string) (domain.Token, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM tokens WHERE access_hash = ?`, hash)
	return scanToken(row)
}

func (r *tokensRepo) GetTokenByRefreshHash(ctx context.Context, hash string) (domain.Token, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM tokens WHERE refresh_hash = ?`, hash)
	return scanToken(row)
}

// RevokeToken only succeeds on a not-yet-revoked row; a concurrent refresh of
// the same pair loses the race and observes ErrNotFound.
func (r *tokensRepo) RevokeToken(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tokens
		SET revoked = 1, revoked_at = ?
		WHERE id = ? AND revoked = 0`, at, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *tokensRepo) DeleteTokensBefore(ctx context.Context, cutoff time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM tokens
		WHERE revoked = 1 AND datetime(created_at, '+' || expires_in || ' seconds') < datetime(?)`,
		cutoff)
	return err
}

package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/openledger/oidcd/internal/oidc/domain"
)

type authorizationCodesRepo struct {
	db dbtx
}

func (r *authorizationCodesRepo) CreateAuthorizationCode(ctx context.Context, c domain.AuthorizationCode) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO authorization_codes (id, client_id, user_id, code_hash,
			redirect_uri, nonce, expires_in, revoked, revoked_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.ClientID, c.UserID, c.CodeHash, c.RedirectURI,
		mapStringNull(c.Nonce), c.TTLSeconds, c.Revoked,
		mapOptionalTime(c.RevokedAt), c.CreatedAt,
	)
	return mapConflict(err)
}

func (r *authorizationCodesRepo) GetAuthorizationCodeByHash(ctx context.Context, hash string) (domain.AuthorizationCode, error) {
	var (
		c         domain.AuthorizationCode
		nonce     sql.NullString
		revokedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, client_id, user_id, code_hash, redirect_uri, nonce,
			expires_in, revoked, revoked_at, created_at
		FROM authorization_codes
		WHERE code_hash = ?`, hash,
	).Scan(&c.ID, &c.ClientID, &c.UserID, &c.CodeHash, &c.RedirectURI,
		&nonce, &c.TTLSeconds, &c.Revoked, &revokedAt, &c.CreatedAt)
	if err != nil {
		return domain.AuthorizationCode{}, mapNotFound(err)
	}
	c.Nonce = mapNullString(nonce)
	c.RevokedAt = mapNullTimePtr(revokedAt)
	return c, nil
}

// RevokeAuthorizationCode only succeeds on a not-yet-revoked row, which is
// what makes concurrent redemptions of the same code serialize: exactly one
// caller sees a row flip.
func (r *authorizationCodesRepo) RevokeAuthorizationCode(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE authorization_codes
		SET revoked = 1, revoked_at = ?
		WHERE id = ? AND revoked = 0`, at, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *authorizationCodesRepo) DeleteAuthorizationCodesBefore(ctx context.Context, cutoff time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM authorization_codes
		WHERE revoked = 1 AND datetime(created_at, '+' || expires_in || ' seconds') < datetime(?)`,
		cutoff)
	return err
}

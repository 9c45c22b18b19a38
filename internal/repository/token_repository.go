package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/autoseers/carseer/internal/apperr"
)

// TokenRepo persists/validates refresh tokens (single 'token_hash' column).
type TokenRepo struct {
	DB  *sql.DB
	now func() time.Time
}

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db, now: time.Now} }

// StoreRefresh inserts a refresh token hash row.
func (r *TokenRepo) StoreRefresh(ctx context.Context, userID string, tokenHash string, exp time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES (?,?,?)",
		userID, tokenHash, exp.UTC())
	return err
}

// ValidateRefresh returns the owner of a non-revoked, non-expired token.
// Unknown, revoked and expired tokens all yield apperr.ErrNotFound.
func (r *TokenRepo) ValidateRefresh(ctx context.Context, tokenHash string) (string, error) {
	var (
		userID    string
		expiresAt time.Time
		revokedAt sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT user_id, expires_at, revoked_at FROM refresh_tokens WHERE token_hash=? LIMIT 1",
		tokenHash).Scan(&userID, &expiresAt, &revokedAt)
	if err != nil {
		return "", notFound(err, "refresh token")
	}
	if revokedAt.Valid || r.now().UTC().After(expiresAt) {
		return "", notFound(sql.ErrNoRows, "refresh token")
	}
	return userID, nil
}

// RevokeByHash marks a token as revoked.
func (r *TokenRepo) RevokeByHash(ctx context.Context, tokenHash string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=UTC_TIMESTAMP() WHERE token_hash=? AND revoked_at IS NULL",
		tokenHash)
	return err
}

// Rotate revokes oldHash and stores newHash for the same user atomically.
// A concurrent rotation of the same token loses with apperr.ErrNotFound.
func (r *TokenRepo) Rotate(ctx context.Context, userID, oldHash, newHash string, exp time.Time) error {
	return withTx(ctx, r.DB, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE refresh_tokens SET revoked_at=UTC_TIMESTAMP() WHERE token_hash=? AND user_id=? AND revoked_at IS NULL",
			oldHash, userID)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return notFound(sql.ErrNoRows, "refresh token")
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES (?,?,?)",
			userID, newHash, exp.UTC())
		if isDuplicate(err) {
			return apperr.ErrConflict
		}
		return err
	})
}

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aussiebroadwan/tollgate/internal/identity/domain"
	"github.com/aussiebroadwan/tollgate/internal/identity/store"
)

type refreshTokensRepo struct {
	q dbtx

	// begin is set when q is the root handle so that multi-statement writes
	// can open their own transaction. Inside a txStore it is nil.
	begin func(context.Context, *sql.TxOptions) (*sql.Tx, error)
}

var _ store.ExpiredRefreshTokenPurger = (*refreshTokensRepo)(nil)

func (r *refreshTokensRepo) GetRefreshToken(ctx context.Context, userID, appID string) (domain.RefreshTokenRecord, error) {
	var (
		rec                  domain.RefreshTokenRecord
		expiresAt, createdAt int64
	)
	err := r.q.QueryRowContext(ctx, `
		SELECT id, user_id, app_id, token_hash, expires_at, created_at
		FROM refresh_tokens WHERE user_id = ? AND app_id = ?`, userID, appID,
	).Scan(&rec.ID, &rec.UserID, &rec.AppID, &rec.TokenHash, &expiresAt, &createdAt)
	if err != nil {
		return domain.RefreshTokenRecord{}, mapNotFound(err)
	}
	rec.ExpiresAt = fromMillis(expiresAt)
	rec.CreatedAt = fromMillis(createdAt)
	return rec, nil
}

func (r *refreshTokensRepo) ReplaceRefreshToken(ctx context.Context, rec domain.RefreshTokenRecord) error {
	return r.atomic(ctx, func(q dbtx) error {
		if _, err := q.ExecContext(ctx,
			`DELETE FROM refresh_tokens WHERE user_id = ? AND app_id = ?`, rec.UserID, rec.AppID); err != nil {
			return fmt.Errorf("sqlite: delete refresh token: %w", err)
		}
		if _, err := q.ExecContext(ctx, `
			INSERT INTO refresh_tokens (id, user_id, app_id, token_hash, expires_at, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.UserID, rec.AppID, rec.TokenHash, toMillis(rec.ExpiresAt), toMillis(rec.CreatedAt)); err != nil {
			return fmt.Errorf("sqlite: insert refresh token: %w", mapConstraint(err))
		}
		return nil
	})
}

// SwapRefreshToken is a single conditional UPDATE, so concurrent callers
// presenting the same previous hash cannot both succeed.
func (r *refreshTokensRepo) SwapRefreshToken(
	ctx context.Context,
	previousHash string,
	now time.Time,
	rec domain.RefreshTokenRecord,
) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET id = ?, token_hash = ?, expires_at = ?, created_at = ?
		WHERE user_id = ? AND app_id = ? AND token_hash = ? AND expires_at > ?`,
		rec.ID, rec.TokenHash, toMillis(rec.ExpiresAt), toMillis(rec.CreatedAt),
		rec.UserID, rec.AppID, previousHash, toMillis(now))
	return expectOne(res, err)
}

func (r *refreshTokensRepo) DeleteRefreshToken(ctx context.Context, userID, appID string) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE user_id = ? AND app_id = ?`, userID, appID)
	return err
}

func (r *refreshTokensRepo) atomic(ctx context.Context, fn func(q dbtx) error) error {
	if r.begin == nil {
		return fn(r.q)
	}

	tx, err := r.begin(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *refreshTokensRepo) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= ?`, toMillis(now))
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete expired refresh tokens: %w", err)
	}
	return res.RowsAffected()
}

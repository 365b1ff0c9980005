// Package postgres keeps refresh-token records in PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/tollgate/internal/identity/domain"
	"github.com/aussiebroadwan/tollgate/internal/identity/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store implements store.RefreshTokens over a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ store.RefreshTokens             = (*Store)(nil)
	_ store.ExpiredRefreshTokenPurger = (*Store)(nil)
)

// Open connects to dsn and pings the server.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) GetRefreshToken(ctx context.Context, userID, appID string) (domain.RefreshTokenRecord, error) {
	var rec domain.RefreshTokenRecord
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, app_id, token_hash, expires_at, created_at
		FROM refresh_tokens WHERE user_id = $1 AND app_id = $2`, userID, appID,
	).Scan(&rec.ID, &rec.UserID, &rec.AppID, &rec.TokenHash, &rec.ExpiresAt, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RefreshTokenRecord{}, store.ErrNotFound
		}
		return domain.RefreshTokenRecord{}, fmt.Errorf("postgres: load refresh token: %w", err)
	}
	rec.ExpiresAt = rec.ExpiresAt.UTC()
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, nil
}

// ReplaceRefreshToken upserts on (user_id, app_id) in one statement.
func (s *Store) ReplaceRefreshToken(ctx context.Context, rec domain.RefreshTokenRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO refresh_tokens (id, user_id, app_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, app_id) DO UPDATE SET
			id = EXCLUDED.id,
			token_hash = EXCLUDED.token_hash,
			expires_at = EXCLUDED.expires_at,
			created_at = EXCLUDED.created_at`,
		rec.ID, rec.UserID, rec.AppID, rec.TokenHash, rec.ExpiresAt, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: replace refresh token: %w", err)
	}
	return nil
}

func (s *Store) SwapRefreshToken(
	ctx context.Context,
	previousHash string,
	now time.Time,
	rec domain.RefreshTokenRecord,
) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE refresh_tokens
		SET id = $1, token_hash = $2, expires_at = $3, created_at = $4
		WHERE user_id = $5 AND app_id = $6 AND token_hash = $7 AND expires_at > $8`,
		rec.ID, rec.TokenHash, rec.ExpiresAt, rec.CreatedAt,
		rec.UserID, rec.AppID, previousHash, now)
	if err != nil {
		return fmt.Errorf("postgres: swap refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteRefreshToken(ctx context.Context, userID, appID string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM refresh_tokens WHERE user_id = $1 AND app_id = $2`, userID, appID); err != nil {
		return fmt.Errorf("postgres: delete refresh token: %w", err)
	}
	return nil
}

func (s *Store) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("postgres: delete expired refresh tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

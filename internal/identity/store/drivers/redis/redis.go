// Package redis keeps refresh-token records in Redis for deployments that run
// several signing nodes against an external user directory.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aussiebroadwan/tollgate/internal/identity/domain"
	"github.com/aussiebroadwan/tollgate/internal/identity/store"
	goredis "github.com/redis/go-redis/v9"
)

// Config controls the client. Zero values fall back to conservative defaults.
type Config struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`

	DialTimeout  time.Duration `koanf:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	PoolSize     int           `koanf:"pool_size"`
	PingTimeout  time.Duration `koanf:"ping_timeout"`
}

func (c Config) withDefaults() Config {
	out := c
	if out.DialTimeout <= 0 {
		out.DialTimeout = 3 * time.Second
	}
	if out.ReadTimeout <= 0 {
		out.ReadTimeout = 2 * time.Second
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = 2 * time.Second
	}
	if out.PoolSize <= 0 {
		out.PoolSize = 20
	}
	if out.PingTimeout <= 0 {
		out.PingTimeout = 2 * time.Second
	}
	return out
}

// Store implements store.RefreshTokens. Each (user, app) pair is one hash
// whose key expires with the token.
type Store struct {
	rdb goredis.UniversalClient
}

var _ store.RefreshTokens = (*Store)(nil)

// Open dials Redis and validates connectivity with PING.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	cfg = cfg.withDefaults()
	if cfg.Addr == "" {
		return nil, errors.New("redis: addr is required")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return &Store{rdb: rdb}, nil
}

// New wraps an existing client.
func New(rdb goredis.UniversalClient) *Store { return &Store{rdb: rdb} }

func (s *Store) Close() error { return s.rdb.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.rdb.Ping(ctx).Err() }

func key(userID, appID string) string {
	return "refresh:" + userID + ":" + appID
}

func (s *Store) GetRefreshToken(ctx context.Context, userID, appID string) (domain.RefreshTokenRecord, error) {
	fields, err := s.rdb.HGetAll(ctx, key(userID, appID)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return domain.RefreshTokenRecord{}, store.ErrNotFound
		}
		return domain.RefreshTokenRecord{}, fmt.Errorf("redis: load refresh token: %w", err)
	}
	if len(fields) == 0 {
		return domain.RefreshTokenRecord{}, store.ErrNotFound
	}
	return decode(fields)
}

func (s *Store) ReplaceRefreshToken(ctx context.Context, rec domain.RefreshTokenRecord) error {
	k := key(rec.UserID, rec.AppID)
	_, err := s.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Del(ctx, k)
		p.HSet(ctx, k, encode(rec))
		p.PExpireAt(ctx, k, rec.ExpiresAt)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: replace refresh token: %w", err)
	}
	return nil
}

// swapScript rewrites the hash only while it still carries the expected
// token hash and has not expired.
//
// KEYS[1] = record key
// ARGV[1] = previous hash, ARGV[2] = now (ms)
// ARGV[3..6] = id, token_hash, expires_at (ms), created_at (ms)
var swapScript = goredis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'token_hash')
if not current or current ~= ARGV[1] then
  return 0
end
local exp = tonumber(redis.call('HGET', KEYS[1], 'expires_at'))
if not exp or exp <= tonumber(ARGV[2]) then
  return 0
end
redis.call('HSET', KEYS[1], 'id', ARGV[3], 'token_hash', ARGV[4], 'expires_at', ARGV[5], 'created_at', ARGV[6])
redis.call('PEXPIREAT', KEYS[1], ARGV[5])
return 1
`)

func (s *Store) SwapRefreshToken(
	ctx context.Context,
	previousHash string,
	now time.Time,
	rec domain.RefreshTokenRecord,
) error {
	res, err := swapScript.Run(ctx, s.rdb, []string{key(rec.UserID, rec.AppID)},
		previousHash, now.UnixMilli(),
		rec.ID, rec.TokenHash, rec.ExpiresAt.UnixMilli(), rec.CreatedAt.UnixMilli(),
	).Int()
	if err != nil {
		return fmt.Errorf("redis: swap refresh token: %w", err)
	}
	if res != 1 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteRefreshToken(ctx context.Context, userID, appID string) error {
	if err := s.rdb.Del(ctx, key(userID, appID)).Err(); err != nil && !errors.Is(err, goredis.Nil) {
		return fmt.Errorf("redis: delete refresh token: %w", err)
	}
	return nil
}

func encode(rec domain.RefreshTokenRecord) map[string]any {
	return map[string]any{
		"id":         rec.ID,
		"user_id":    rec.UserID,
		"app_id":     rec.AppID,
		"token_hash": rec.TokenHash,
		"expires_at": rec.ExpiresAt.UnixMilli(),
		"created_at": rec.CreatedAt.UnixMilli(),
	}
}

func decode(fields map[string]string) (domain.RefreshTokenRecord, error) {
	expiresAt, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return domain.RefreshTokenRecord{}, fmt.Errorf("redis: decode expires_at: %w", err)
	}
	createdAt, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return domain.RefreshTokenRecord{}, fmt.Errorf("redis: decode created_at: %w", err)
	}
	return domain.RefreshTokenRecord{
		ID:        fields["id"],
		UserID:    fields["user_id"],
		AppID:     fields["app_id"],
		TokenHash: fields["token_hash"],
		ExpiresAt: time.UnixMilli(expiresAt).UTC(),
		CreatedAt: time.UnixMilli(createdAt).UTC(),
	}, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/tollgate/internal/identity/domain"
	"github.com/aussiebroadwan/tollgate/internal/identity/store"
	"github.com/aussiebroadwan/tollgate/pkg/cryptox"
	"github.com/aussiebroadwan/tollgate/pkg/idx"
)

// DefaultRefreshTTL applies when RefreshTokenStore.TTL is zero.
const DefaultRefreshTTL = 72 * time.Hour

// RefreshTokenStore keeps exactly one live refresh token per (user, app).
// Only fingerprints reach the driver.
type RefreshTokenStore struct {
	Tokens store.RefreshTokens
	TTL    time.Duration
	Now    func() time.Time
}

func (s *RefreshTokenStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *RefreshTokenStore) ttl() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return DefaultRefreshTTL
}

func (s *RefreshTokenStore) mint(userID, appID string) (domain.RefreshToken, domain.RefreshTokenRecord, error) {
	opaque, fp, err := cryptox.NewOpaqueToken()
	if err != nil {
		return domain.RefreshToken{}, domain.RefreshTokenRecord{}, fmt.Errorf("generate refresh token: %w", err)
	}

	now := s.now()
	rec := domain.RefreshTokenRecord{
		ID:        idx.NewAt(now).String(),
		UserID:    userID,
		AppID:     appID,
		TokenHash: fp,
		ExpiresAt: now.Add(s.ttl()),
		CreatedAt: now,
	}
	return domain.RefreshToken{Token: opaque, ExpireAt: rec.ExpiresAt}, rec, nil
}

// IssueOrRotate replaces whatever token (user, app) held with a new one.
func (s *RefreshTokenStore) IssueOrRotate(ctx context.Context, userID, appID string) (domain.RefreshToken, error) {
	tok, rec, err := s.mint(userID, appID)
	if err != nil {
		return domain.RefreshToken{}, err
	}
	if err := s.Tokens.ReplaceRefreshToken(ctx, rec); err != nil {
		return domain.RefreshToken{}, fmt.Errorf("store refresh token: %w", err)
	}
	return tok, nil
}

// Consume checks presented against the live record without modifying it.
// The returned record is what Rotate must swap out.
func (s *RefreshTokenStore) Consume(ctx context.Context, userID, appID, presented string) (domain.RefreshTokenRecord, error) {
	if presented == "" {
		return domain.RefreshTokenRecord{}, ErrRefreshTokenInvalid
	}

	rec, err := s.Tokens.GetRefreshToken(ctx, userID, appID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.RefreshTokenRecord{}, ErrRefreshTokenInvalid
		}
		return domain.RefreshTokenRecord{}, fmt.Errorf("load refresh token: %w", err)
	}

	if !cryptox.FingerprintMatches(presented, rec.TokenHash) {
		return domain.RefreshTokenRecord{}, ErrRefreshTokenMismatch
	}
	if !s.now().Before(rec.ExpiresAt) {
		return domain.RefreshTokenRecord{}, ErrRefreshTokenExpired
	}
	return rec, nil
}

// Rotate swaps previous for a new token only if previous is still the live
// record. Of several callers racing with the same previous record exactly
// one succeeds; the rest get ErrRefreshTokenMismatch.
func (s *RefreshTokenStore) Rotate(ctx context.Context, previous domain.RefreshTokenRecord) (domain.RefreshToken, error) {
	tok, rec, err := s.mint(previous.UserID, previous.AppID)
	if err != nil {
		return domain.RefreshToken{}, err
	}

	err = s.Tokens.SwapRefreshToken(ctx, previous.TokenHash, rec.CreatedAt, rec)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.RefreshToken{}, ErrRefreshTokenMismatch
		}
		return domain.RefreshToken{}, fmt.Errorf("rotate refresh token: %w", err)
	}
	return tok, nil
}

func (s *RefreshTokenStore) Revoke(ctx context.Context, userID, appID string) error {
	if err := s.Tokens.DeleteRefreshToken(ctx, userID, appID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

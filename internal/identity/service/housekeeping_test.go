package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aussiebroadwan/tollgate/internal/identity/domain"
	"github.com/aussiebroadwan/tollgate/internal/identity/store"
	"github.com/stretchr/testify/require"
)

func TestHousekeepingPurgesExpiredRefreshTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	tokens := f.store.RefreshTokens()
	f.addUser(t, "u-old", "old", "pw")
	f.addUser(t, "u-new", "new", "pw")
	require.NoError(t, tokens.ReplaceRefreshToken(ctx, domain.RefreshTokenRecord{
		ID: "r1", UserID: "u-old", AppID: "Default", TokenHash: "h1",
		ExpiresAt: now.Add(-time.Minute), CreatedAt: now.Add(-time.Hour),
	}))
	require.NoError(t, tokens.ReplaceRefreshToken(ctx, domain.RefreshTokenRecord{
		ID: "r2", UserID: "u-new", AppID: "Default", TokenHash: "h2",
		ExpiresAt: now.Add(time.Hour), CreatedAt: now,
	}))

	purger, ok := tokens.(store.ExpiredRefreshTokenPurger)
	require.True(t, ok)

	hk := NewHousekeepingService(purger, slog.New(slog.NewTextHandler(io.Discard, nil)), time.Hour)
	hk.Now = func() time.Time { return now }
	hk.Start()
	hk.Stop()

	_, err := tokens.GetRefreshToken(ctx, "u-old", "Default")
	require.ErrorIs(t, err, store.ErrNotFound)

	rec, err := tokens.GetRefreshToken(ctx, "u-new", "Default")
	require.NoError(t, err)
	require.Equal(t, "h2", rec.TokenHash)
}

package postgres_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aussiebroadwan/tollgate/internal/identity/domain"
	"github.com/aussiebroadwan/tollgate/internal/identity/store"
	"github.com/aussiebroadwan/tollgate/internal/identity/store/drivers/postgres"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgres(t *testing.T) *postgres.Store {
	t.Helper()
	if testing.Short() {
		t.Skip("container test")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "tollgate",
				"POSTGRES_PASSWORD": "tollgate",
				"POSTGRES_DB":       "tollgate",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://tollgate:tollgate@%s:%s/tollgate?sslmode=disable", host, port.Port())
	s, err := postgres.Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.ApplyMigrations())
	require.NoError(t, s.ApplyMigrations())
	return s
}

func TestRefreshTokens(t *testing.T) {
	s := setupPostgres(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	rec := domain.RefreshTokenRecord{
		ID: "rt-1", UserID: "u-1", AppID: "Default", TokenHash: "hash-1",
		ExpiresAt: now.Add(time.Hour), CreatedAt: now,
	}

	_, err := s.GetRefreshToken(ctx, "u-1", "Default")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.ReplaceRefreshToken(ctx, rec))
	got, err := s.GetRefreshToken(ctx, "u-1", "Default")
	require.NoError(t, err)
	require.Equal(t, rec.TokenHash, got.TokenHash)
	require.True(t, rec.ExpiresAt.Equal(got.ExpiresAt))

	replaced := rec
	replaced.ID, replaced.TokenHash = "rt-2", "hash-2"
	require.NoError(t, s.ReplaceRefreshToken(ctx, replaced))

	next := replaced
	next.ID, next.TokenHash = "rt-3", "hash-3"
	require.ErrorIs(t, s.SwapRefreshToken(ctx, "hash-1", now, next), store.ErrNotFound)
	require.ErrorIs(t, s.SwapRefreshToken(ctx, "hash-2", replaced.ExpiresAt, next), store.ErrNotFound)
	require.NoError(t, s.SwapRefreshToken(ctx, "hash-2", now, next))
	require.ErrorIs(t, s.SwapRefreshToken(ctx, "hash-2", now, next), store.ErrNotFound)

	require.NoError(t, s.DeleteRefreshToken(ctx, "u-1", "Default"))
	_, err = s.GetRefreshToken(ctx, "u-1", "Default")
	require.ErrorIs(t, err, store.ErrNotFound)
}

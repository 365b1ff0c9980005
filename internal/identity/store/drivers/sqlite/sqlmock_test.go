package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aussiebroadwan/tollgate/internal/identity/domain"
	"github.com/stretchr/testify/require"
)

func TestReplaceRefreshTokenRollsBackOnInsertFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := newStoreFromDB(db)
	boom := errors.New("disk I/O error")

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM refresh_tokens").
		WithArgs("u-1", "Default").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO refresh_tokens").
		WillReturnError(boom)
	mock.ExpectRollback()

	now := time.Now()
	err = s.RefreshTokens().ReplaceRefreshToken(context.Background(), domain.RefreshTokenRecord{
		ID: "rt-1", UserID: "u-1", AppID: "Default", TokenHash: "h", ExpiresAt: now.Add(time.Hour), CreatedAt: now,
	})
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSwapRefreshTokenReportsMiss(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := newStoreFromDB(db)
	mock.ExpectExec("UPDATE refresh_tokens").WillReturnResult(sqlmock.NewResult(0, 0))

	err = s.RefreshTokens().SwapRefreshToken(context.Background(), "old", time.Now(), domain.RefreshTokenRecord{
		ID: "rt-2", UserID: "u-1", AppID: "Default", TokenHash: "new",
	})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/tollgate/internal/identity/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root of the reference user store. Drivers expose the
// sub-repositories as methods so a transaction-scoped Store can hand out the
// same repositories bound to its transaction.
type Store interface {
	Users() Users
	RefreshTokens() RefreshTokens

	ApplyMigrations() error

	// WithTx runs fn in a transaction, committing when fn returns nil.
	WithTx(ctx context.Context, fn func(tx Store) error) error

	Close() error
	Ping(ctx context.Context) error
}

// LockoutPolicy controls how failed password attempts lock an account.
type LockoutPolicy struct {
	MaxFailedAttempts int
	Duration          time.Duration
}

// DefaultLockoutPolicy locks for five minutes after five failures.
var DefaultLockoutPolicy = LockoutPolicy{MaxFailedAttempts: 5, Duration: 5 * time.Minute}

// Users is the user-store boundary the sign-in flows depend on.
type Users interface {
	FindByID(ctx context.Context, id string) (domain.User, error)
	FindByUserName(ctx context.Context, userName string) (domain.User, error)
	FindByExternalLogin(ctx context.Context, provider, providerKey string) (domain.User, error)
	FindByPhoneNumber(ctx context.Context, phone string) (domain.User, error)

	// CheckPassword reports whether password matches the stored hash. Users
	// without a password never match.
	CheckPassword(ctx context.Context, u domain.User, password string) (bool, error)

	GetRoles(ctx context.Context, userID string) ([]string, error)
	GetClaims(ctx context.Context, userID string) ([]domain.Claim, error)

	IsLockedOut(ctx context.Context, u domain.User) (bool, error)
	RequiresTwoFactor(ctx context.Context, u domain.User) (bool, error)

	// AccessFailed records a failed password attempt and locks the account
	// once the policy threshold is reached.
	AccessFailed(ctx context.Context, userID string) error
	ResetAccessFailedCount(ctx context.Context, userID string) error

	CreateUser(ctx context.Context, u domain.User) error
	AddLogin(ctx context.Context, userID string, login domain.ExternalLogin) error
	AddToRoles(ctx context.Context, userID string, roles ...string) error
	AddClaims(ctx context.Context, userID string, claims ...domain.Claim) error

	// SetPhoneNumber stores the number and rotates the security stamp.
	SetPhoneNumber(ctx context.Context, userID, phone string) error
	EnableTwoFactor(ctx context.Context, userID, secret string) error

	// UseTwoFactorStep records step as the last accepted TOTP time step. It
	// returns false when step is not newer than the one already recorded,
	// so a code is only ever accepted once.
	UseTwoFactorStep(ctx context.Context, userID string, step int64) (bool, error)
}

// RefreshTokens holds at most one live record per (user, app).
type RefreshTokens interface {
	GetRefreshToken(ctx context.Context, userID, appID string) (domain.RefreshTokenRecord, error)

	// ReplaceRefreshToken deletes any record for (rec.UserID, rec.AppID) and
	// inserts rec, atomically.
	ReplaceRefreshToken(ctx context.Context, rec domain.RefreshTokenRecord) error

	// SwapRefreshToken replaces the record only while it still carries
	// previousHash and has not expired at now. It returns ErrNotFound when
	// another caller won the race or the record is gone.
	SwapRefreshToken(ctx context.Context, previousHash string, now time.Time, rec domain.RefreshTokenRecord) error

	DeleteRefreshToken(ctx context.Context, userID, appID string) error
}

// ExpiredRefreshTokenPurger is implemented by drivers whose records do not
// expire on their own.
type ExpiredRefreshTokenPurger interface {
	DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error)
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/aussiebroadwan/tollgate/internal/identity/store"
	"github.com/aussiebroadwan/tollgate/pkg/cryptox"
	_ "modernc.org/sqlite"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type options struct {
	hasher  *cryptox.Hasher
	lockout store.LockoutPolicy
	now     func() time.Time
}

type Option func(*options)

// WithHasher sets the password hasher used by CheckPassword.
func WithHasher(h *cryptox.Hasher) Option { return func(o *options) { o.hasher = h } }

func WithLockoutPolicy(p store.LockoutPolicy) Option { return func(o *options) { o.lockout = p } }

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// Store is the SQLite reference user store.
type Store struct {
	db   *sql.DB
	opts *options
}

var _ store.Store = (*Store)(nil)

// NewStore opens dsn with the modernc driver. Foreign keys are enforced on
// every pooled connection.
func NewStore(dsn string, opts ...Option) (*Store, error) {
	if !strings.Contains(dsn, "foreign_keys") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=foreign_keys(1)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if strings.Contains(dsn, ":memory:") {
		// Each connection to :memory: is its own database.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return newStoreFromDB(db, opts...), nil
}

func newStoreFromDB(db *sql.DB, opts ...Option) *Store {
	o := &options{
		hasher:  cryptox.NewHasher(""),
		lockout: store.DefaultLockoutPolicy,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return &Store{db: db, opts: o}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// WithTx runs fn in a transaction. The deferred rollback is a no-op after a
// successful commit.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&txStore{tx: tx, opts: s.opts}); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Users() store.Users { return &usersRepo{q: s.db, opts: s.opts} }

func (s *Store) RefreshTokens() store.RefreshTokens {
	return &refreshTokensRepo{q: s.db, begin: s.db.BeginTx}
}

func mapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func mapConstraint(err error) error {
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return store.ErrAlreadyExists
	}
	return err
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

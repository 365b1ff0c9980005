package sqlite

import (
	"context"
	"database/sql"

	"github.com/aussiebroadwan/tollgate/internal/identity/store"
)

// txStore binds the repositories to an open transaction.
type txStore struct {
	tx   *sql.Tx
	opts *options
}

func (t *txStore) Users() store.Users { return &usersRepo{q: t.tx, opts: t.opts} }

// Nested atomic work joins the outer transaction.
func (t *txStore) RefreshTokens() store.RefreshTokens { return &refreshTokensRepo{q: t.tx} }

func (t *txStore) WithTx(_ context.Context, fn func(tx store.Store) error) error { return fn(t) }

// Migrations run on the root store before any transaction is opened.
func (t *txStore) ApplyMigrations() error { return nil }

func (t *txStore) Close() error { return nil }

func (t *txStore) Ping(context.Context) error { return nil }

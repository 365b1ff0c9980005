package service

import (
	"context"
	"testing"
	"time"

	"github.com/aussiebroadwan/tollgate/internal/identity/domain"
	"github.com/aussiebroadwan/tollgate/internal/identity/store/drivers/sqlite"
	"github.com/aussiebroadwan/tollgate/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

type fakeVerifier struct {
	ident domain.ExternalIdentity
	err   error
	calls int
}

func (f *fakeVerifier) Verify(_ context.Context, cred domain.ProviderCredential) (domain.ExternalIdentity, error) {
	f.calls++
	if f.err != nil {
		return domain.ExternalIdentity{}, f.err
	}
	id := f.ident
	id.Provider = cred.Provider
	return id, nil
}

type fixture struct {
	store   *sqlite.Store
	signer  *TokenSigner
	refresh *RefreshTokenStore
	ext     *fakeVerifier
	svc     *SignInService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	signer, err := NewTokenSigner(TokenSignerOptions{
		Issuer:    "tollgate",
		Audience:  "tollgate-clients",
		Secret:    testSecret,
		AccessTTL: 72 * time.Hour,
	})
	require.NoError(t, err)

	f := &fixture{
		store:   st,
		signer:  signer,
		refresh: &RefreshTokenStore{Tokens: st.RefreshTokens(), TTL: 72 * time.Hour},
		ext: &fakeVerifier{ident: domain.ExternalIdentity{
			ProviderSubjectID: "ext-42",
			DisplayName:       "Ext User",
			Email:             "ext@example.com",
			Address:           "1 Example St",
		}},
	}

	f.svc, err = NewSignInService(SignInOptions{
		Store:        st,
		Refresh:      f.refresh,
		Signer:       signer,
		External:     f.ext,
		DefaultRoles: []string{"member"},
	})
	require.NoError(t, err)
	return f
}

// addUser creates a user with password (empty for none) and roles.
func (f *fixture) addUser(t *testing.T, id, name, password string, roles ...string) domain.User {
	t.Helper()
	ctx := context.Background()

	var hash string
	if password != "" {
		var err error
		hash, err = cryptox.NewHasher("").Hash(password)
		require.NoError(t, err)
	}
	require.NoError(t, f.store.Users().CreateUser(ctx, domain.User{
		ID:           id,
		UserName:     name,
		Email:        name + "@example.com",
		PasswordHash: hash,
	}))
	if len(roles) > 0 {
		require.NoError(t, f.store.Users().AddToRoles(ctx, id, roles...))
	}

	u, err := f.store.Users().FindByID(ctx, id)
	require.NoError(t, err)
	return u
}

package external

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aussiebroadwan/tollgate/internal/identity/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/idtoken"
)

type fakeIDTokens struct {
	tokens   map[string]*idtoken.Payload
	audience string
}

func (f *fakeIDTokens) Validate(_ context.Context, tok, audience string) (*idtoken.Payload, error) {
	f.audience = audience
	p, ok := f.tokens[tok]
	if !ok {
		return nil, errors.New("idtoken: invalid token")
	}
	return p, nil
}

func TestGoogleVerifier(t *testing.T) {
	ctx := context.Background()

	ids := &fakeIDTokens{tokens: map[string]*idtoken.Payload{
		"good": {Subject: "g-1", Claims: map[string]any{
			"name": "Goo Gle", "email": "g@example.com", "email_verified": true,
		}},
		"unverified-email": {Subject: "g-2", Claims: map[string]any{
			"email": "x@example.com", "email_verified": false,
		}},
	}}

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		if r.Form.Get("code") != "code-1" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		assert.Equal(t, "pkce-verifier", r.Form.Get("code_verifier"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "at", "token_type": "Bearer", "expires_in": 3600, "id_token": "good",
		})
	}))
	t.Cleanup(tokenSrv.Close)

	v, err := NewGoogleVerifier(ctx, GoogleConfig{
		ClientID:     "client-1",
		ClientSecret: "secret-1",
		Validator:    ids,
		Endpoint:     oauth2.Endpoint{TokenURL: tokenSrv.URL},
		HTTPClient:   tokenSrv.Client(),
	})
	require.NoError(t, err)

	t.Run("id token", func(t *testing.T) {
		ident, err := v.Verify(ctx, domain.NewImplicitToken(domain.ProviderGoogle, "good"))
		require.NoError(t, err)
		require.Equal(t, "client-1", ids.audience)
		require.Equal(t, "g-1", ident.ProviderSubjectID)
		require.Equal(t, "Goo Gle", ident.DisplayName)
		require.Equal(t, "g@example.com", ident.Email)
	})

	t.Run("unverified email is dropped", func(t *testing.T) {
		ident, err := v.Verify(ctx, domain.NewImplicitToken(domain.ProviderGoogle, "unverified-email"))
		require.NoError(t, err)
		require.Empty(t, ident.Email)
	})

	t.Run("invalid id token", func(t *testing.T) {
		_, err := v.Verify(ctx, domain.NewImplicitToken(domain.ProviderGoogle, "forged"))
		require.Error(t, err)
	})

	t.Run("authorization code", func(t *testing.T) {
		ident, err := v.Verify(ctx, domain.NewAuthCode(domain.ProviderGoogle, "code-1", "pkce-verifier", "https://app.example/cb"))
		require.NoError(t, err)
		require.Equal(t, "g-1", ident.ProviderSubjectID)
	})

	t.Run("bad authorization code", func(t *testing.T) {
		_, err := v.Verify(ctx, domain.NewAuthCode(domain.ProviderGoogle, "code-2", "", ""))
		require.Error(t, err)
	})
}

func TestGoogleVerifierConfig(t *testing.T) {
	ctx := context.Background()

	_, err := NewGoogleVerifier(ctx, GoogleConfig{Validator: &fakeIDTokens{}})
	require.Error(t, err)

	v, err := NewGoogleVerifier(ctx, GoogleConfig{ClientID: "client-1", Validator: &fakeIDTokens{}})
	require.NoError(t, err)
	_, err = v.Verify(ctx, domain.NewAuthCode(domain.ProviderGoogle, "code-1", "", ""))
	require.ErrorContains(t, err, "client secret")
}

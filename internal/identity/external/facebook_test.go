package external

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aussiebroadwan/tollgate/internal/identity/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGraph struct {
	appID     string
	isValid   bool
	tokenUser string
	profileID string
	meStatus  int
}

func (g *fakeGraph) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /debug_token", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "user-token", r.URL.Query().Get("input_token"))
		assert.Equal(t, "app-1|app-secret", r.URL.Query().Get("access_token"))
		_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{
			"app_id":   g.appID,
			"is_valid": g.isValid,
			"user_id":  g.tokenUser,
		}})
	})
	mux.HandleFunc("GET /me", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer user-token", r.Header.Get("Authorization"))
		assert.Equal(t, appSecretProof("app-secret", "user-token"), r.URL.Query().Get("appsecret_proof"))
		if g.meStatus != 0 {
			w.WriteHeader(g.meStatus)
			return
		}
		_, _ = w.Write([]byte(`{
			"id": "` + g.profileID + `",
			"name": "Fb User",
			"email": "fb@example.com",
			"birthday": "01/02/1990",
			"address": {"street": "1 Example St", "city": "Sydney", "country": "Australia"}
		}`))
	})
	return mux
}

func newFacebook(t *testing.T, g *fakeGraph) *FacebookVerifier {
	t.Helper()
	srv := httptest.NewServer(g.handler(t))
	t.Cleanup(srv.Close)

	v, err := NewFacebookVerifier(FacebookConfig{
		ClientID:     "app-1",
		ClientSecret: "app-secret",
		GraphURL:     srv.URL,
		HTTPClient:   srv.Client(),
	})
	require.NoError(t, err)
	return v
}

func TestFacebookVerifier(t *testing.T) {
	ctx := context.Background()
	cred := domain.NewImplicitToken(domain.ProviderFacebook, "user-token")

	t.Run("valid token", func(t *testing.T) {
		v := newFacebook(t, &fakeGraph{appID: "app-1", isValid: true, tokenUser: "fb-7", profileID: "fb-7"})
		ident, err := v.Verify(ctx, cred)
		require.NoError(t, err)
		require.Equal(t, domain.ExternalIdentity{
			Provider:          domain.ProviderFacebook,
			ProviderSubjectID: "fb-7",
			DisplayName:       "Fb User",
			Email:             "fb@example.com",
			Address:           "1 Example St, Sydney, Australia",
			Birthdate:         "01/02/1990",
		}, ident)
	})

	t.Run("token issued to another app", func(t *testing.T) {
		v := newFacebook(t, &fakeGraph{appID: "app-evil", isValid: true, tokenUser: "fb-7", profileID: "fb-7"})
		_, err := v.Verify(ctx, cred)
		require.ErrorContains(t, err, "app-evil")
	})

	t.Run("invalid token", func(t *testing.T) {
		v := newFacebook(t, &fakeGraph{appID: "app-1", isValid: false})
		_, err := v.Verify(ctx, cred)
		require.Error(t, err)
	})

	t.Run("profile belongs to someone else", func(t *testing.T) {
		v := newFacebook(t, &fakeGraph{appID: "app-1", isValid: true, tokenUser: "fb-7", profileID: "fb-8"})
		_, err := v.Verify(ctx, cred)
		require.Error(t, err)
	})

	t.Run("profile endpoint fails", func(t *testing.T) {
		v := newFacebook(t, &fakeGraph{appID: "app-1", isValid: true, tokenUser: "fb-7", meStatus: http.StatusBadRequest})
		_, err := v.Verify(ctx, cred)
		require.ErrorContains(t, err, "status 400")
	})

	t.Run("authorization codes are not supported", func(t *testing.T) {
		v := newFacebook(t, &fakeGraph{})
		_, err := v.Verify(ctx, domain.NewAuthCode(domain.ProviderFacebook, "code", "", ""))
		require.Error(t, err)
	})

	t.Run("through the registry a tampered app id is just rejected", func(t *testing.T) {
		v := newFacebook(t, &fakeGraph{appID: "app-evil", isValid: true, tokenUser: "fb-7", profileID: "fb-7"})
		_, err := NewRegistry(0, v).Verify(ctx, cred)
		require.ErrorIs(t, err, ErrRejected)
	})
}

func TestNewFacebookVerifierRequiresCredentials(t *testing.T) {
	_, err := NewFacebookVerifier(FacebookConfig{ClientID: "app-1"})
	require.Error(t, err)
}

func TestFacebookLocationAcceptsString(t *testing.T) {
	var p fbProfile
	require.NoError(t, json.Unmarshal([]byte(`{"id":"1","address":"Somewhere"}`), &p))
	require.Equal(t, fbLocation("Somewhere"), p.Address)
}

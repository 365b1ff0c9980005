package identity_test

import (
	"testing"

	"github.com/aussiebroadwan/tollgate/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

func TestAdminOnlySignIn(t *testing.T) {
	client := setupContainer(t, withRelaxedLimits(adminOnlyEnv()))
	ctx := t.Context()

	t.Run("administrator signs in without a refresh token", func(t *testing.T) {
		resp, err := client.PasswordSignIn(ctx, authsdk.PasswordSignInRequest{
			UserName:    adminUserName,
			Password:    adminPassword,
			AppID:       "console",
			Refreshable: true,
			Claims:      []authsdk.Claim{{Type: "tenant", Value: "acme"}},
		})
		require.NoError(t, err)
		assertTokenResponse(t, resp)
		require.Equal(t, adminUserName, resp.SubjectID)
		require.Equal(t, "console", resp.AppID)
		require.Empty(t, resp.RefreshToken)

		require.NoError(t, client.SignOut(ctx, resp.AccessToken))
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := client.PasswordSignIn(ctx, authsdk.PasswordSignInRequest{
			UserName: adminUserName,
			Password: "wrong",
		})
		assertErrorCode(t, err, authsdk.ErrorCodeUnauthorized)
	})

	t.Run("missing user name", func(t *testing.T) {
		_, err := client.PasswordSignIn(ctx, authsdk.PasswordSignInRequest{Password: adminPassword})
		assertErrorCode(t, err, authsdk.ErrorCodeInvalidRequest)
	})

	t.Run("refresh is rejected", func(t *testing.T) {
		_, err := client.Refresh(ctx, "not-a-token", "not-a-refresh-token")
		require.Error(t, err)
	})
}

func TestSQLiteStoreSignIn(t *testing.T) {
	client := setupContainer(t, withRelaxedLimits(baseEnv()))
	ctx := t.Context()

	_, err := client.PasswordSignIn(ctx, authsdk.PasswordSignInRequest{
		UserName: "nobody",
		Password: "secret",
	})
	assertErrorCode(t, err, authsdk.ErrorCodeUnauthorized)

	_, err = client.ExternalSignIn(ctx, authsdk.ExternalSignInRequest{
		Credential: authsdk.ProviderCredential{
			Provider:    "Google",
			Kind:        authsdk.CredentialImplicitToken,
			AccessToken: "token",
		},
	})
	require.Error(t, err, "no providers are configured")
}

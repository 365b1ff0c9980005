package identity_test

import (
	"testing"

	"github.com/aussiebroadwan/tollgate/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

// Uses the production limits: five password attempts per minute per user name.
func TestPasswordSignInRateLimit(t *testing.T) {
	client := setupContainer(t, adminOnlyEnv())
	ctx := t.Context()

	req := authsdk.PasswordSignInRequest{UserName: adminUserName, Password: "wrong"}
	for range 5 {
		_, err := client.PasswordSignIn(ctx, req)
		assertErrorCode(t, err, authsdk.ErrorCodeUnauthorized)
	}

	_, err := client.PasswordSignIn(ctx, req)
	assertErrorCode(t, err, authsdk.ErrorCodeRateLimited)

	// Another user name has its own budget.
	_, err = client.PasswordSignIn(ctx, authsdk.PasswordSignInRequest{UserName: "someone", Password: "wrong"})
	require.False(t, authsdk.IsErrorCode(err, authsdk.ErrorCodeRateLimited))
}

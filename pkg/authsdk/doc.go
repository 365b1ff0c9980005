/*
Package authsdk is the Go client for the tollgate sign-in service, and the
home of the JSON request and response types shared with the server.

# Signing in

	client := authsdk.NewClient("https://id.example.com")

	tok, err := client.PasswordSignIn(ctx, authsdk.PasswordSignInRequest{
		UserName:    "alice",
		Password:    "correct horse battery staple",
		Refreshable: true,
	})

A user with two-factor authentication enabled gets a *TwoFactorRequiredError
carrying a short-lived ticket instead of a token:

	var tfa *authsdk.TwoFactorRequiredError
	if errors.As(err, &tfa) {
		tok, err = client.TwoFactorSignIn(ctx, tfa.Ticket, code)
	}

External providers take either a token obtained by the client or an
authorization code the server redeems itself:

	tok, err := client.ExternalSignIn(ctx, authsdk.ExternalSignInRequest{
		Credential: authsdk.ProviderCredential{
			Provider:    "Google",
			Kind:        authsdk.CredentialAuthCode,
			Code:        code,
			CodeVerifier: verifier,
			RedirectURI: "https://app.example.com/callback",
		},
	})

An identity with no local account fails with ErrorCodeExternalLoginNotLinked;
ExternalSignUp creates one.

# Refreshing

Refresh tokens are single use. Every successful Refresh returns a new pair and
the presented refresh token stops working:

	tok, err = client.Refresh(ctx, tok.AccessToken, tok.RefreshToken)

# Errors

Every non-2xx response is returned as an *APIError. Use IsErrorCode to branch
on the error code.
*/
package authsdk

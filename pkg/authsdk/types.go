package authsdk

import "time"

// Credential kinds accepted in ProviderCredential.Kind.
const (
	CredentialImplicitToken = "implicit_token"
	CredentialAuthCode      = "auth_code"
)

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`

	// Ticket is set with ErrorCodeTwoFactorRequired.
	Ticket string `json:"ticket,omitempty"`
}

// Claim is an extra (type, value) pair to embed in the issued token.
type Claim struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type PasswordSignInRequest struct {
	UserName    string  `json:"username"`
	Password    string  `json:"password"`
	AppID       string  `json:"app_id,omitempty"`
	Refreshable bool    `json:"refreshable,omitempty"`
	Claims      []Claim `json:"claims,omitempty"`
}

type TwoFactorSignInRequest struct {
	Ticket string `json:"ticket"`
	Code   string `json:"code"`
}

// ProviderCredential proves an identity at an external provider. AccessToken
// is used with CredentialImplicitToken; Code, CodeVerifier and RedirectURI
// with CredentialAuthCode.
type ProviderCredential struct {
	Provider     string `json:"provider"`
	Kind         string `json:"kind"`
	AccessToken  string `json:"access_token,omitempty"`
	Code         string `json:"code,omitempty"`
	CodeVerifier string `json:"code_verifier,omitempty"`
	RedirectURI  string `json:"redirect_uri,omitempty"`
}

type ExternalSignInRequest struct {
	Credential  ProviderCredential `json:"credential"`
	AppID       string             `json:"app_id,omitempty"`
	Refreshable bool               `json:"refreshable,omitempty"`
	Claims      []Claim            `json:"claims,omitempty"`
}

type ExternalSignUpRequest struct {
	Credential ProviderCredential `json:"credential"`
	// UserName defaults to the provider's email address.
	UserName    string `json:"username,omitempty"`
	AppID       string `json:"app_id,omitempty"`
	Refreshable bool   `json:"refreshable,omitempty"`
}

type RefreshRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// TokenResponse is returned by every successful sign-in and refresh.
type TokenResponse struct {
	AppID       string    `json:"app_id"`
	SubjectID   string    `json:"subject_id"`
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`

	RefreshToken     string     `json:"refresh_token,omitempty"`
	RefreshExpiresAt *time.Time `json:"refresh_expires_at,omitempty"`
}

type PhoneNumberTokenRequest struct {
	PhoneNumber string `json:"phone_number"`
}

// PhoneNumberTokenResponse echoes the normalised number the code was sent to.
type PhoneNumberTokenResponse struct {
	PhoneNumber string `json:"phone_number"`
}

type ChangePhoneNumberRequest struct {
	PhoneNumber string `json:"phone_number"`
	Code        string `json:"code"`
}

type HealthResponse struct {
	Status  string            `json:"status"`
	Uptime  string            `json:"uptime"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}

package domain

// Supported external identity providers.
const (
	ProviderFacebook  = "Facebook"
	ProviderGoogle    = "Google"
	ProviderMicrosoft = "Microsoft"
)

type CredentialKind int

const (
	// ImplicitToken is an access or id token obtained by the client.
	ImplicitToken CredentialKind = iota + 1
	// AuthCode is an authorization code the server exchanges itself.
	AuthCode
)

func (k CredentialKind) String() string {
	switch k {
	case ImplicitToken:
		return "implicit_token"
	case AuthCode:
		return "auth_code"
	default:
		return "unknown"
	}
}

// ProviderCredential is what a client presents to prove an identity at a
// provider. Fields not relevant to Kind are empty.
type ProviderCredential struct {
	Provider string
	Kind     CredentialKind

	// ImplicitToken
	AccessToken string

	// AuthCode
	Code         string
	CodeVerifier string
	RedirectURI  string
}

func NewImplicitToken(provider, token string) ProviderCredential {
	return ProviderCredential{Provider: provider, Kind: ImplicitToken, AccessToken: token}
}

func NewAuthCode(provider, code, codeVerifier, redirectURI string) ProviderCredential {
	return ProviderCredential{
		Provider:     provider,
		Kind:         AuthCode,
		Code:         code,
		CodeVerifier: codeVerifier,
		RedirectURI:  redirectURI,
	}
}

// ExternalIdentity is a provider-verified identity, normalised across
// providers. Optional profile fields may be empty.
type ExternalIdentity struct {
	Provider          string
	ProviderSubjectID string
	DisplayName       string
	Email             string
	Address           string
	Birthdate         string
}

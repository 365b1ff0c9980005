package external

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aussiebroadwan/tollgate/internal/identity/domain"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/idtoken"
	"google.golang.org/api/option"
)

// IDTokenValidator is satisfied by *idtoken.Validator.
type IDTokenValidator interface {
	Validate(ctx context.Context, idToken, audience string) (*idtoken.Payload, error)
}

type GoogleConfig struct {
	ClientID     string
	ClientSecret string // only needed for authorization codes
	Scopes       []string

	// Validator defaults to an idtoken.Validator using Google's published
	// certificates.
	Validator IDTokenValidator

	// Endpoint defaults to google.Endpoint.
	Endpoint   oauth2.Endpoint
	HTTPClient *http.Client
}

// GoogleVerifier accepts Google-signed id tokens whose audience is ClientID,
// either presented directly or obtained by exchanging an authorization code.
type GoogleVerifier struct {
	cfg GoogleConfig
}

func NewGoogleVerifier(ctx context.Context, cfg GoogleConfig) (*GoogleVerifier, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("google: client id is required")
	}
	cfg.HTTPClient = defaultHTTPClient(cfg.HTTPClient)
	if cfg.Endpoint.TokenURL == "" {
		cfg.Endpoint = google.Endpoint
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{"openid", "profile", "email"}
	}
	if cfg.Validator == nil {
		v, err := idtoken.NewValidator(ctx, option.WithHTTPClient(cfg.HTTPClient))
		if err != nil {
			return nil, fmt.Errorf("google: id token validator: %w", err)
		}
		cfg.Validator = v
	}
	return &GoogleVerifier{cfg: cfg}, nil
}

func (v *GoogleVerifier) Name() string { return domain.ProviderGoogle }

func (v *GoogleVerifier) Verify(ctx context.Context, cred domain.ProviderCredential) (domain.ExternalIdentity, error) {
	var raw string
	switch cred.Kind {
	case domain.ImplicitToken:
		raw = cred.AccessToken
	case domain.AuthCode:
		var err error
		if raw, err = v.exchange(ctx, cred); err != nil {
			return domain.ExternalIdentity{}, err
		}
	default:
		return domain.ExternalIdentity{}, fmt.Errorf("google: unsupported credential %s", cred.Kind)
	}
	if raw == "" {
		return domain.ExternalIdentity{}, errors.New("google: empty id token")
	}

	payload, err := v.cfg.Validator.Validate(ctx, raw, v.cfg.ClientID)
	if err != nil {
		return domain.ExternalIdentity{}, fmt.Errorf("google: validate id token: %w", err)
	}

	ident := domain.ExternalIdentity{
		Provider:          domain.ProviderGoogle,
		ProviderSubjectID: payload.Subject,
		DisplayName:       stringClaim(payload.Claims, "name"),
		Email:             stringClaim(payload.Claims, "email"),
	}
	if verified, ok := payload.Claims["email_verified"].(bool); ok && !verified {
		ident.Email = ""
	}
	return ident, nil
}

func (v *GoogleVerifier) exchange(ctx context.Context, cred domain.ProviderCredential) (string, error) {
	if v.cfg.ClientSecret == "" {
		return "", errors.New("google: authorization codes need a client secret")
	}
	conf := &oauth2.Config{
		ClientID:     v.cfg.ClientID,
		ClientSecret: v.cfg.ClientSecret,
		Endpoint:     v.cfg.Endpoint,
		RedirectURL:  cred.RedirectURI,
		Scopes:       v.cfg.Scopes,
	}
	return exchangeIDToken(ctx, conf, v.cfg.HTTPClient, cred)
}

// exchangeIDToken redeems an authorization code and returns the id_token from
// the token response.
func exchangeIDToken(ctx context.Context, conf *oauth2.Config, client *http.Client, cred domain.ProviderCredential) (string, error) {
	if cred.Code == "" {
		return "", errors.New("empty authorization code")
	}

	var opts []oauth2.AuthCodeOption
	if cred.CodeVerifier != "" {
		opts = append(opts, oauth2.VerifierOption(cred.CodeVerifier))
	}

	tok, err := conf.Exchange(context.WithValue(ctx, oauth2.HTTPClient, client), cred.Code, opts...)
	if err != nil {
		return "", fmt.Errorf("exchange code: %w", err)
	}
	idTok, _ := tok.Extra("id_token").(string)
	if idTok == "" {
		return "", errors.New("token response has no id_token")
	}
	return idTok, nil
}

func stringClaim(claims map[string]any, name string) string {
	s, _ := claims[name].(string)
	return s
}

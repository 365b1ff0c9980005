package external

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/aussiebroadwan/tollgate/internal/identity/domain"
	"github.com/aussiebroadwan/tollgate/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

const (
	defaultMicrosoftAuthority = "https://login.microsoftonline.com"
	defaultMicrosoftTenant    = "common"
)

type MicrosoftConfig struct {
	ClientID     string
	ClientSecret string
	Scopes       []string

	// Tenant is a tenant id or one of common, organizations, consumers.
	Tenant string

	// Authority defaults to the public Microsoft identity platform.
	Authority string

	// ValidateIssuer pins iss to the discovered issuer. Multi-tenant apps
	// usually leave it off.
	ValidateIssuer bool

	HTTPClient *http.Client
	Now        func() time.Time
}

// MicrosoftVerifier validates Microsoft identity platform id tokens against
// the tenant's OIDC discovery document and signing keys. Authorization codes
// are exchanged first, with PKCE when a verifier is supplied.
type MicrosoftVerifier struct {
	cfg MicrosoftConfig

	mu   sync.Mutex
	meta *oidcMetadata
	jwks *keyfunc.JWKS
}

type oidcMetadata struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	JWKSURI               string `json:"jwks_uri"`
}

type microsoftClaims struct {
	jwt.RegisteredClaims
	ObjectID string `json:"oid"`
	TenantID string `json:"tid"`
	Name     string `json:"name"`
	Email    string `json:"email"`
}

func NewMicrosoftVerifier(cfg MicrosoftConfig) (*MicrosoftVerifier, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("microsoft: client id is required")
	}
	if cfg.Tenant == "" {
		cfg.Tenant = defaultMicrosoftTenant
	}
	if cfg.Authority == "" {
		cfg.Authority = defaultMicrosoftAuthority
	}
	cfg.Authority = strings.TrimRight(cfg.Authority, "/")
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{"openid", "profile", "email"}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.HTTPClient = defaultHTTPClient(cfg.HTTPClient)
	return &MicrosoftVerifier{cfg: cfg}, nil
}

func (v *MicrosoftVerifier) Name() string { return domain.ProviderMicrosoft }

func (v *MicrosoftVerifier) discoveryURL() string {
	return v.cfg.Authority + "/" + v.cfg.Tenant + "/v2.0/.well-known/openid-configuration"
}

// discover loads and caches the discovery document and key set. A failed
// attempt is retried on the next call.
func (v *MicrosoftVerifier) discover(ctx context.Context) (*oidcMetadata, *keyfunc.JWKS, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.meta != nil && v.jwks != nil {
		return v.meta, v.jwks, nil
	}

	var meta oidcMetadata
	if err := getJSON(ctx, v.cfg.HTTPClient, v.discoveryURL(), &meta); err != nil {
		return nil, nil, fmt.Errorf("discovery: %w", err)
	}
	if meta.JWKSURI == "" {
		return nil, nil, errors.New("discovery: no jwks_uri")
	}

	jwks, err := keyfunc.Get(meta.JWKSURI, keyfunc.Options{
		Client:            v.cfg.HTTPClient,
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  5 * time.Minute,
		RefreshTimeout:    10 * time.Second,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			slog.Warn("microsoft key set refresh failed", slog.String("provider", domain.ProviderMicrosoft), slog.Any("error", err))
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("jwks: %w", err)
	}

	v.meta, v.jwks = &meta, jwks
	return v.meta, v.jwks, nil
}

func (v *MicrosoftVerifier) Verify(ctx context.Context, cred domain.ProviderCredential) (domain.ExternalIdentity, error) {
	meta, jwks, err := v.discover(ctx)
	if err != nil {
		return domain.ExternalIdentity{}, fmt.Errorf("microsoft: %w", err)
	}

	var raw string
	switch cred.Kind {
	case domain.AuthCode:
		conf := &oauth2.Config{
			ClientID:     v.cfg.ClientID,
			ClientSecret: v.cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  meta.AuthorizationEndpoint,
				TokenURL: meta.TokenEndpoint,
			},
			RedirectURL: cred.RedirectURI,
			Scopes:      v.cfg.Scopes,
		}
		if raw, err = exchangeIDToken(ctx, conf, v.cfg.HTTPClient, cred); err != nil {
			return domain.ExternalIdentity{}, fmt.Errorf("microsoft: %w", err)
		}
	case domain.ImplicitToken:
		raw = cred.AccessToken
	default:
		return domain.ExternalIdentity{}, fmt.Errorf("microsoft: unsupported credential %s", cred.Kind)
	}

	claims := &microsoftClaims{}
	_, err = jwt.ParseWithClaims(raw, claims, jwks.Keyfunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.cfg.ClientID),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(jwtx.DefaultLeeway),
		jwt.WithTimeFunc(v.cfg.Now),
	)
	if err != nil {
		return domain.ExternalIdentity{}, fmt.Errorf("microsoft: validate id token: %w", err)
	}

	if v.cfg.ValidateIssuer {
		want := strings.ReplaceAll(meta.Issuer, "{tenantid}", claims.TenantID)
		if claims.Issuer != want {
			return domain.ExternalIdentity{}, fmt.Errorf("microsoft: issuer %q, want %q", claims.Issuer, want)
		}
	}

	subject := claims.ObjectID
	if subject == "" {
		subject = claims.Subject
	}
	return domain.ExternalIdentity{
		Provider:          domain.ProviderMicrosoft,
		ProviderSubjectID: subject,
		DisplayName:       claims.Name,
		Email:             claims.Email,
	}, nil
}

// Close stops the background key refresh.
func (v *MicrosoftVerifier) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.jwks != nil {
		v.jwks.EndBackground()
	}
	return nil
}

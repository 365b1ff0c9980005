package external

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/aussiebroadwan/tollgate/internal/identity/domain"
	"golang.org/x/oauth2"
)

const defaultGraphURL = "https://graph.facebook.com/v19.0"

type FacebookConfig struct {
	ClientID     string
	ClientSecret string

	// GraphURL defaults to the public Graph API.
	GraphURL   string
	HTTPClient *http.Client
}

// FacebookVerifier accepts user access tokens minted for this app.
//
// debug_token proves the token is live and was issued to ClientID; the
// profile is then read with the same token.
type FacebookVerifier struct {
	cfg FacebookConfig
}

func NewFacebookVerifier(cfg FacebookConfig) (*FacebookVerifier, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("facebook: client id and secret are required")
	}
	if cfg.GraphURL == "" {
		cfg.GraphURL = defaultGraphURL
	}
	cfg.GraphURL = strings.TrimRight(cfg.GraphURL, "/")
	cfg.HTTPClient = defaultHTTPClient(cfg.HTTPClient)
	return &FacebookVerifier{cfg: cfg}, nil
}

func (v *FacebookVerifier) Name() string { return domain.ProviderFacebook }

type fbDebugToken struct {
	Data struct {
		AppID   string `json:"app_id"`
		IsValid bool   `json:"is_valid"`
		UserID  string `json:"user_id"`
	} `json:"data"`
}

type fbProfile struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Email    string     `json:"email"`
	Birthday string     `json:"birthday"`
	Address  fbLocation `json:"address"`
}

// fbLocation accepts either a plain string or a structured address.
type fbLocation string

func (l *fbLocation) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*l = fbLocation(s)
		return nil
	}
	var a struct {
		Street  string `json:"street"`
		City    string `json:"city"`
		State   string `json:"state"`
		Zip     string `json:"zip"`
		Country string `json:"country"`
	}
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	var parts []string
	for _, p := range []string{a.Street, a.City, a.State, a.Zip, a.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	*l = fbLocation(strings.Join(parts, ", "))
	return nil
}

func (v *FacebookVerifier) Verify(ctx context.Context, cred domain.ProviderCredential) (domain.ExternalIdentity, error) {
	if cred.Kind != domain.ImplicitToken || cred.AccessToken == "" {
		return domain.ExternalIdentity{}, fmt.Errorf("facebook: unsupported credential %s", cred.Kind)
	}

	// 1. Introspect with the app token
	q := url.Values{
		"input_token":  {cred.AccessToken},
		"access_token": {v.cfg.ClientID + "|" + v.cfg.ClientSecret},
	}
	var dbg fbDebugToken
	if err := getJSON(ctx, v.cfg.HTTPClient, v.cfg.GraphURL+"/debug_token?"+q.Encode(), &dbg); err != nil {
		return domain.ExternalIdentity{}, fmt.Errorf("facebook: debug_token: %w", err)
	}
	if !dbg.Data.IsValid {
		return domain.ExternalIdentity{}, errors.New("facebook: token is not valid")
	}
	if dbg.Data.AppID != v.cfg.ClientID {
		return domain.ExternalIdentity{}, fmt.Errorf("facebook: token issued to app %q", dbg.Data.AppID)
	}

	// 2. Profile, authenticated as the user
	client := oauth2.NewClient(
		context.WithValue(ctx, oauth2.HTTPClient, v.cfg.HTTPClient),
		oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cred.AccessToken, TokenType: "Bearer"}),
	)
	pq := url.Values{
		"fields":          {"id,name,address,email,birthday"},
		"appsecret_proof": {appSecretProof(v.cfg.ClientSecret, cred.AccessToken)},
	}
	var prof fbProfile
	if err := getJSON(ctx, client, v.cfg.GraphURL+"/me?"+pq.Encode(), &prof); err != nil {
		return domain.ExternalIdentity{}, fmt.Errorf("facebook: profile: %w", err)
	}
	if prof.ID == "" || (dbg.Data.UserID != "" && prof.ID != dbg.Data.UserID) {
		return domain.ExternalIdentity{}, fmt.Errorf("facebook: profile id %q does not match token user %q", prof.ID, dbg.Data.UserID)
	}

	return domain.ExternalIdentity{
		Provider:          domain.ProviderFacebook,
		ProviderSubjectID: prof.ID,
		DisplayName:       prof.Name,
		Email:             prof.Email,
		Address:           string(prof.Address),
		Birthdate:         prof.Birthday,
	}, nil
}

func appSecretProof(secret, token string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

// getJSON GETs rawURL and decodes a 2xx body into dst.
func getJSON(ctx context.Context, client *http.Client, rawURL string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		// url.Error repeats the URL, which may carry the app secret.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			return fmt.Errorf("%s: %w", uerr.Op, uerr.Err)
		}
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %d: %s", resp.StatusCode, truncate(body, 256))
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}

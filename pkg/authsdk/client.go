package authsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client talks to a tollgate server. It holds no session state.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) PasswordSignIn(ctx context.Context, req PasswordSignInRequest) (*TokenResponse, error) {
	var out TokenResponse
	if err := c.do(ctx, http.MethodPost, "/v1/signin/password", "", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) TwoFactorSignIn(ctx context.Context, ticket, code string) (*TokenResponse, error) {
	var out TokenResponse
	req := TwoFactorSignInRequest{Ticket: ticket, Code: code}
	if err := c.do(ctx, http.MethodPost, "/v1/signin/twofactor", "", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ExternalSignIn(ctx context.Context, req ExternalSignInRequest) (*TokenResponse, error) {
	var out TokenResponse
	if err := c.do(ctx, http.MethodPost, "/v1/signin/external", "", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ExternalSignUp(ctx context.Context, req ExternalSignUpRequest) (*TokenResponse, error) {
	var out TokenResponse
	if err := c.do(ctx, http.MethodPost, "/v1/signin/external/signup", "", req, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh trades an access token, expired or not, and its refresh token for
// a new pair.
func (c *Client) Refresh(ctx context.Context, accessToken, refreshToken string) (*TokenResponse, error) {
	var out TokenResponse
	req := RefreshRequest{AccessToken: accessToken, RefreshToken: refreshToken}
	if err := c.do(ctx, http.MethodPost, "/v1/token/refresh", "", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// SignOut revokes the refresh token issued alongside accessToken.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, "/v1/signout", accessToken, nil, nil, http.StatusNoContent)
}

// RequestPhoneNumberChange asks the server to send a verification code to
// number. It returns the number in the normalised form the code is bound to.
func (c *Client) RequestPhoneNumberChange(ctx context.Context, accessToken, number string) (string, error) {
	var out PhoneNumberTokenResponse
	req := PhoneNumberTokenRequest{PhoneNumber: number}
	if err := c.do(ctx, http.MethodPost, "/v1/account/phone/token", accessToken, req, &out, http.StatusAccepted); err != nil {
		return "", err
	}
	return out.PhoneNumber, nil
}

func (c *Client) ChangePhoneNumber(ctx context.Context, accessToken, number, code string) error {
	req := ChangePhoneNumberRequest{PhoneNumber: number, Code: code}
	return c.do(ctx, http.MethodPost, "/v1/account/phone", accessToken, req, nil, http.StatusNoContent)
}

func (c *Client) Liveness(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.do(ctx, http.MethodGet, "/livez", "", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Readiness(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.do(ctx, http.MethodGet, "/readyz", "", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// do sends in as JSON (when non-nil) and decodes a want-status response into
// out (when non-nil). Any other status becomes a typed error.
func (c *Client) do(ctx context.Context, method, path, bearer string, in, out any, want int) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != want {
		return parseErrorResponse(resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

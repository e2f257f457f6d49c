// Package authclient calls the identity service over HTTP.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"gamelog/pkg/domain"
	"gamelog/pkg/store"
)

// Client calls the auth service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// APIError represents an auth service error response.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// IsUnauthorized reports whether err is a 401 from the auth service.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

// NewClient constructs an auth service client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// WithHTTPClient swaps the transport, mainly for tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// SignUpRequest is the body of POST /auth/signup.
type SignUpRequest struct {
	Email           string              `json:"email"`
	Password        string              `json:"password"`
	ConfirmPassword string              `json:"confirmPassword"`
	Gamertag        string              `json:"gamertag"`
	MainPlatform    domain.MainPlatform `json:"mainPlatform"`
	FullName        string              `json:"fullName,omitempty"`
}

// AuthResponse is returned by signup, login and refresh.
type AuthResponse struct {
	Token        string      `json:"token"`
	RefreshToken string      `json:"refreshToken"`
	ExpiresAt    time.Time   `json:"expiresAt"`
	User         domain.User `json:"user"`
}

func (c *Client) SignUp(ctx context.Context, req SignUpRequest) (AuthResponse, error) {
	var resp AuthResponse
	err := c.doJSON(ctx, http.MethodPost, "/auth/signup", "", req, &resp)
	return resp, err
}

func (c *Client) Login(ctx context.Context, email, password string) (AuthResponse, error) {
	payload := map[string]string{"email": email, "password": password}
	var resp AuthResponse
	err := c.doJSON(ctx, http.MethodPost, "/auth/login", "", payload, &resp)
	return resp, err
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (AuthResponse, error) {
	payload := map[string]string{"refreshToken": refreshToken}
	var resp AuthResponse
	err := c.doJSON(ctx, http.MethodPost, "/auth/refresh", "", payload, &resp)
	return resp, err
}

func (c *Client) Logout(ctx context.Context, token, refreshToken string) error {
	var payload any
	if strings.TrimSpace(refreshToken) != "" {
		payload = map[string]string{"refreshToken": refreshToken}
	}
	return c.doJSON(ctx, http.MethodPost, "/auth/logout", token, payload, nil)
}

func (c *Client) Me(ctx context.Context, token string) (domain.User, error) {
	var user domain.User
	if err := c.doJSON(ctx, http.MethodGet, "/auth/me", token, nil, &user); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// UpdateProfile replaces the caller's profile metadata.
func (c *Client) UpdateProfile(ctx context.Context, token string, profile domain.Profile) (domain.User, error) {
	var user domain.User
	if err := c.doJSON(ctx, http.MethodPatch, "/auth/me", token, profile, &user); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func (c *Client) JWKS(ctx context.Context) ([]store.JWK, error) {
	var resp struct {
		Keys []store.JWK `json:"keys"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/auth/jwks", "", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Keys, nil
}

func (c *Client) doJSON(ctx context.Context, method, path, token string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&errResp)
		msg := errResp.Error
		if msg == "" {
			msg = resp.Status
		}
		return &APIError{Status: resp.StatusCode, Code: errResp.Code, Message: msg}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

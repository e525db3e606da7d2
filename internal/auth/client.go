package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sprint-insights/backend/internal/models"
)

// RemoteError is a failure reported by the auth service. Message is the
// service's own text, passed through to the user unchanged.
type RemoteError struct {
	Status  int
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// Client talks to the hosted auth REST API (GoTrue).
type Client struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
}

// NewClient creates a client for the auth service at baseURL (the project URL,
// without the /auth/v1 suffix).
func NewClient(baseURL, anonKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		anonKey: anonKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := c.baseURL + "/auth/v1" + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// SignInWithPassword exchanges email and password for a session.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*models.AuthSession, error) {
	payload := map[string]string{"email": email, "password": password}
	var session models.AuthSession
	q := url.Values{"grant_type": {"password"}}
	if err := c.do(ctx, http.MethodPost, c.endpoint("/token", q), "", payload, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// SignInWithOTP sends a magic link to email. redirectTo is optional.
func (c *Client) SignInWithOTP(ctx context.Context, email, redirectTo string) error {
	payload := map[string]interface{}{"email": email, "create_user": true}
	var q url.Values
	if redirectTo != "" {
		q = url.Values{"redirect_to": {redirectTo}}
	}
	return c.do(ctx, http.MethodPost, c.endpoint("/otp", q), "", payload, nil)
}

// OAuthURL returns the URL that starts an OAuth sign-in with provider.
func (c *Client) OAuthURL(provider, redirectTo string) string {
	q := url.Values{"provider": {provider}}
	if redirectTo != "" {
		q.Set("redirect_to", redirectTo)
	}
	return c.endpoint("/authorize", q)
}

// RefreshSession exchanges a refresh token for a new session.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*models.AuthSession, error) {
	payload := map[string]string{"refresh_token": refreshToken}
	var session models.AuthSession
	q := url.Values{"grant_type": {"refresh_token"}}
	if err := c.do(ctx, http.MethodPost, c.endpoint("/token", q), "", payload, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// GetUser returns the user owning accessToken.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*models.User, error) {
	var user models.User
	if err := c.do(ctx, http.MethodGet, c.endpoint("/user", nil), accessToken, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// SignOut revokes the session behind accessToken.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, c.endpoint("/logout", nil), accessToken, nil, nil)
}

func (c *Client) do(ctx context.Context, method, target, bearer string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", c.anonKey)
	if bearer == "" {
		bearer = c.anonKey
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("auth request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read auth response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseRemoteError(resp.StatusCode, respBody)
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode auth response: %w", err)
	}
	return nil
}

// parseRemoteError reads the several error shapes the auth service uses.
func parseRemoteError(status int, body []byte) error {
	var payload struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		ErrorCode        string `json:"error_code"`
		Msg              string `json:"msg"`
		Message          string `json:"message"`
	}
	_ = json.Unmarshal(body, &payload)

	remote := &RemoteError{Status: status, Code: payload.ErrorCode}
	if remote.Code == "" {
		remote.Code = payload.Error
	}
	for _, m := range []string{payload.ErrorDescription, payload.Msg, payload.Message, payload.Error} {
		if m != "" {
			remote.Message = m
			break
		}
	}
	if remote.Message == "" {
		remote.Message = strings.TrimSpace(string(body))
	}
	if remote.Message == "" {
		remote.Message = http.StatusText(status)
	}
	return remote
}

// Package api provides the REST client for the FiboChat backend: login and
// the enrollment lookup that maps a student to their chatbot group.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Client is a REST client for the FiboChat backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      func() (string, error)
}

// New creates a REST client. If baseURL is empty, FIBOCHAT_SERVER_URL is
// used, defaulting to localhost. The token callback is optional; when set,
// its value is attached as a bearer credential to every request.
// Timeout can be configured via FIBOCHAT_CLIENT_TIMEOUT.
func New(baseURL string, token func() (string, error)) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("FIBOCHAT_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:5217"
	}

	timeout := 30 * time.Second
	if t := os.Getenv("FIBOCHAT_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		token: token,
	}
}

// Profile is the authenticated user as the backend reports it.
type Profile struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	Role     string `json:"role"`
}

// Session is a login result: the bearer token plus the user it belongs to.
type Session struct {
	AccessToken string  `json:"accessToken"`
	User        Profile `json:"user"`
}

// Login authenticates against the backend and returns the session.
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	body := map[string]string{"email": email, "password": password}

	var session Session
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/login", body, &session); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if session.AccessToken == "" {
		return nil, fmt.Errorf("login: server returned no access token")
	}
	return &session, nil
}

// StudentGroup resolves the chatbot group id for a student's active class
// enrollment. An enrolled student always has exactly one active group.
func (c *Client) StudentGroup(ctx context.Context, userID string) (string, error) {
	var result struct {
		GroupID string `json:"groupId"`
	}
	path := "/api/students/" + userID + "/group"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &result); err != nil {
		return "", fmt.Errorf("student group: %w", err)
	}
	if result.GroupID == "" {
		return "", fmt.Errorf("student group: no active enrollment for user %s", userID)
	}
	return result.GroupID, nil
}

// doJSON sends a JSON request and decodes a JSON response.
func (c *Client) doJSON(ctx context.Context, method, path string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		token, err := c.token()
		if err == nil && token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("server error: %s - %s", resp.Status, string(respBody))
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}

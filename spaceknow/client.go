// Package spaceknow is a client for the SpaceKnow API: authentication, credits,
// imagery search, tasking and kraken analyses.
package spaceknow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	DefaultAuthURL = "https://spaceknow.auth0.com"
	DefaultBaseURL = "https://api.spaceknow.com"
	DefaultTimeout = 60 * time.Second
)

// APIError is returned for responses outside the 2xx range
type APIError struct {
	Status int
	URL    string
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("request to %s failed with status %d: %s", e.URL, e.Status, e.Body)
}

var ErrNotAuthenticated = errors.New("not authenticated")

type Config struct {
	AuthURL    string
	BaseURL    string
	ClientID   string
	HTTPClient *http.Client
	Token      string
}

// Client talks to the API. It holds the id token; re-authentication is explicit.
type Client struct {
	authURL    string
	baseURL    string
	clientID   string
	httpClient *http.Client

	mu    sync.RWMutex
	token string

	queries atomic.Int64

	// sleep waits between pipeline status checks
	sleep func(ctx context.Context, d time.Duration) error
}

func NewClient(cfg Config) *Client {
	c := &Client{
		authURL:    strings.TrimSuffix(cfg.AuthURL, "/"),
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		clientID:   cfg.ClientID,
		httpClient: cfg.HTTPClient,
		token:      cfg.Token,
		sleep:      sleepContext,
	}
	if c.authURL == "" {
		c.authURL = DefaultAuthURL
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Timeout:   DefaultTimeout,
			Transport: &http.Transport{Proxy: http.ProxyFromEnvironment},
		}
	}
	return c
}

// SetToken sets the id token sent as bearer on every API request
func (c *Client) SetToken(idToken string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = idToken
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Queries returns the number of requests sent
func (c *Client) Queries() int64 {
	return c.queries.Load()
}

// Authenticate exchanges credentials for an id token and stores it on the client.
func (c *Client) Authenticate(ctx context.Context, credentials Credentials) (AuthToken, error) {
	var token AuthToken
	if err := validate.Struct(credentials); err != nil {
		return token, fmt.Errorf("invalid credentials: %w", err)
	}
	if c.clientID == "" {
		return token, errors.New("no client id configured")
	}
	body := map[string]string{
		"client_id":  c.clientID,
		"connection": "Username-Password-Authentication",
		"grant_type": "password",
		"scope":      "openid",
		"username":   credentials.Username,
		"password":   credentials.Password,
	}
	if err := c.do(ctx, http.MethodPost, c.authURL+"/oauth/ro", body, &token, false); err != nil {
		return token, err
	}
	c.SetToken(token.IDToken)
	return token, nil
}

func (c *Client) post(ctx context.Context, path string, body interface{}, result interface{}) error {
	return c.do(ctx, http.MethodPost, c.baseURL+path, body, result, true)
}

func (c *Client) do(ctx context.Context, method, url string, body interface{}, result interface{}, authenticated bool) error {
	resp, err := c.send(ctx, method, url, body, authenticated)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if result == nil {
		_, err = io.Copy(io.Discard, resp.Body)
		return err
	}
	if err = json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("could not decode response of %s: %w", url, err)
	}
	if reflect.Indirect(reflect.ValueOf(result)).Kind() != reflect.Struct {
		return nil
	}
	if err = validate.Struct(result); err != nil {
		return fmt.Errorf("invalid response of %s: %w", url, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, url string, body interface{}, authenticated bool) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	} else if method == http.MethodPost {
		reader = strings.NewReader("{}")
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authenticated {
		token := c.Token()
		if token == "" {
			return nil, ErrNotAuthenticated
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	c.queries.Add(1)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &APIError{Status: resp.StatusCode, URL: url, Body: strings.TrimSpace(string(msg))}
	}
	return resp, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

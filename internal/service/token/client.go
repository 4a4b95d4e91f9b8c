// Package token fetches short-lived session credentials from the backend.
package token

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrTokenFetch is wrapped by every credential fetch failure.
var ErrTokenFetch = errors.New("session token fetch failed")

// maxTokenBytes caps the credential body read from the backend.
const maxTokenBytes = 64 * 1024

// Credential is an opaque bearer token bound to one participant identity.
type Credential struct {
	Token    string
	Identity string
}

// String redacts the token.
func (c Credential) String() string {
	return fmt.Sprintf("Credential{identity=%s token=[redacted]}", c.Identity)
}

// FetchError describes a failed credential request.
type FetchError struct {
	Identity   string
	StatusCode int // 0 when the request never got a response
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%v: identity=%s status=%d", ErrTokenFetch, e.Identity, e.StatusCode)
	}
	return fmt.Sprintf("%v: identity=%s: %v", ErrTokenFetch, e.Identity, e.Err)
}

// Unwrap lets errors.Is match both ErrTokenFetch and the cause.
func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTokenFetch}
	}
	return []error{ErrTokenFetch, e.Err}
}

// Fetcher obtains a credential for a participant identity.
type Fetcher interface {
	Fetch(ctx context.Context, identity string) (Credential, error)
}

// Config holds token client configuration.
type Config struct {
	BaseURL string        // backend API root, e.g. "/api" or "https://host/api"
	Room    string        // optional room to join; empty lets the backend pick one
	Timeout time.Duration // per-request timeout; 0 disables
}

// Client requests credentials via GET {BaseURL}/getToken?name=<identity>.
type Client struct {
	http    *http.Client
	baseURL string
	room    string
	timeout time.Duration
}

// NewClient creates a token client. A nil httpClient uses http.DefaultClient.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		room:    cfg.Room,
		timeout: cfg.Timeout,
	}
}

// Fetch implements Fetcher. The response body is the plaintext token.
func (c *Client) Fetch(ctx context.Context, identity string) (Credential, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	q := url.Values{}
	q.Set("name", identity)
	if c.room != "" {
		q.Set("room", c.room)
	}
	endpoint := c.baseURL + "/getToken?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Credential{}, &FetchError{Identity: identity, Err: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Credential{}, &FetchError{Identity: identity, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Credential{}, &FetchError{Identity: identity, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenBytes))
	if err != nil {
		return Credential{}, &FetchError{Identity: identity, Err: err}
	}

	tok := strings.TrimSpace(string(body))
	if tok == "" {
		return Credential{}, &FetchError{Identity: identity, Err: errors.New("empty token")}
	}

	log.Debug().
		Str("identity", identity).
		Int("tokenBytes", len(tok)).
		Msg("Session token fetched")

	return Credential{Token: tok, Identity: identity}, nil
}

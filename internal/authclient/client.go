// Package authclient establishes and memoizes credentials for a trusted
// caller acting on behalf of an end user without a browser cookie jar,
// such as a server-side rendering proxy. A genuine browser performs the
// same job transparently through its cookie jar; this package is the
// other execution branch of that design.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"penlight.org/internal/auth"
)

// Client drives the handshake against the auth endpoints and attaches the
// resulting credential to outbound calls. Safe for concurrent use across
// request trees; per-tree progress lives in the Tree, not here.
type Client struct {
	base      string
	http      *http.Client
	appSecret string

	// The server's public key is process-stable, so one fetch serves
	// every tree until the process restarts.
	keyMu     sync.Mutex
	publicPEM string
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// New constructs a client against the given API base URL.
func New(base, appSecret string, opts ...Option) *Client {
	c := &Client{
		base:      strings.TrimRight(base, "/"),
		http:      &http.Client{Timeout: 15 * time.Second},
		appSecret: appSecret,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do sends the request with a credential attached, establishing one first
// when the tree requires it. An auth failure on the call itself surfaces to
// the caller and is not retried. Requests without a tree in context are
// sent untouched: that is the browser branch, where the cookie jar does
// this work.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	tree, ok := TreeFromContext(req.Context())
	if !ok {
		return c.http.Do(req)
	}
	credential, err := c.ensure(req.Context(), tree)
	if err != nil {
		return nil, err
	}
	req.Header.Set(auth.CredentialKey, credential)
	return c.http.Do(req)
}

// ensure advances the tree to Verified and returns its credential. Calls in
// the same tree serialize behind the tree mutex, so two near-simultaneous
// calls inside an unverified tree produce exactly one handshake: the second
// caller blocks until the first finishes, then reuses its credential.
func (c *Client) ensure(ctx context.Context, tree *Tree) (string, error) {
	tree.mu.Lock()
	defer tree.mu.Unlock()

	switch tree.state {
	case StateVerified:
		return tree.credential, nil

	case StateUnverified:
		valid, err := c.checkAuth(ctx, tree.credential)
		if err != nil {
			return "", err
		}
		if valid {
			tree.state = StateVerified
			return tree.credential, nil
		}
		// Stale inheritance: fall back to the unestablished path.
	}

	token, err := c.handshake(ctx)
	if err != nil {
		return "", err
	}
	tree.credential = auth.EncodeCredential(auth.TypeBasic, token)
	tree.state = StateVerified
	return tree.credential, nil
}

// handshake fetches (or reuses) the server public key, hybrid-encrypts the
// application secret and exchanges it for a Basic token. The calls here are
// auth-exempt by construction: they go straight to the transport, never
// through Do, so the state machine cannot recurse into itself.
func (c *Client) handshake(ctx context.Context) (string, error) {
	pem, err := c.publicKey(ctx)
	if err != nil {
		return "", err
	}
	wrapped, ciphertext, err := auth.EncryptHybrid(pem, c.appSecret)
	if err != nil {
		return "", fmt.Errorf("authclient: encrypt secret: %w", err)
	}

	body, err := json.Marshal(map[string]string{"secret": ciphertext, "key": wrapped})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/v1/auth/handshake", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("authclient: handshake: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("authclient: handshake rejected: status %d", resp.StatusCode)
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("authclient: decode handshake response: %w", err)
	}
	if out.Token == "" {
		return "", errors.New("authclient: handshake returned no token")
	}
	return out.Token, nil
}

func (c *Client) publicKey(ctx context.Context) (string, error) {
	c.keyMu.Lock()
	defer c.keyMu.Unlock()
	if c.publicPEM != "" {
		return c.publicPEM, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/v1/auth/key", nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("authclient: fetch public key: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("authclient: fetch public key: status %d", resp.StatusCode)
	}
	pem, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return "", err
	}
	c.publicPEM = string(pem)
	return c.publicPEM, nil
}

func (c *Client) checkAuth(ctx context.Context, credential string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/v1/auth/check", nil)
	if err != nil {
		return false, err
	}
	req.Header.Set(auth.CredentialKey, credential)

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("authclient: check credential: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("authclient: check credential: status %d", resp.StatusCode)
	}

	var out struct {
		Valid bool `json:"valid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("authclient: decode check response: %w", err)
	}
	return out.Valid, nil
}

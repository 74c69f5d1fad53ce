package xmlrpc

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
)

const (
	commonEndpoint = "/xmlrpc/2/common"
	objectEndpoint = "/xmlrpc/2/object"
)

// ErrNotAuthenticated is returned by Call before a successful Authenticate.
var ErrNotAuthenticated = errors.New("xmlrpc: not authenticated")

// AuthError means the authenticate call completed but returned no usable
// session id.
type AuthError struct {
	Database string
	Username string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("xmlrpc: authentication failed for %s@%s", e.Username, e.Database)
}

// ClientConfig carries the remote endpoint and credentials.
type ClientConfig struct {
	BaseURL  string
	Database string
	Username string
	Password string
}

// Client is a stateful session wrapper over Transport + codec. The uid
// obtained from Authenticate is cached for the client's lifetime; there is
// no refresh or re-login — a session invalidated remotely simply makes the
// next call fail.
type Client struct {
	cfg       ClientConfig
	transport Transport
	uid       int64
}

func NewClient(cfg ClientConfig) *Client {
	return &Client{cfg: cfg, transport: NewHTTPTransport()}
}

// NewClientWithTransport is the test seam.
func NewClientWithTransport(cfg ClientConfig, t Transport) *Client {
	return &Client{cfg: cfg, transport: t}
}

// UID returns the cached session id, zero before authentication.
func (c *Client) UID() int64 { return c.uid }

// Authenticate logs in against the common endpoint and caches the returned
// uid. The trailing empty struct is the user_agent_env context Odoo expects.
func (c *Client) Authenticate(ctx context.Context) (int64, error) {
	body := EncodeMethodCall("authenticate",
		c.cfg.Database, c.cfg.Username, c.cfg.Password, map[string]any{})

	raw, err := c.transport.Post(ctx, c.url(commonEndpoint), body)
	if err != nil {
		return 0, fmt.Errorf("authenticate: %w", err)
	}
	result, err := DecodeMethodResponse([]byte(raw))
	if err != nil {
		return 0, fmt.Errorf("authenticate: %w", err)
	}
	if !result.IsTruthy() || result.Kind() != KindInt {
		return 0, &AuthError{Database: c.cfg.Database, Username: c.cfg.Username}
	}
	c.uid = result.Int()
	log.Printf("[xmlrpc] authenticated as %s (uid=%d)", c.cfg.Username, c.uid)
	return c.uid, nil
}

// Call invokes method on a remote model through execute_kw. Positional args
// travel as one array; the trailing empty struct is the kwargs placeholder.
// Every model call funnels through here.
func (c *Client) Call(ctx context.Context, model, method string, args []any) (Value, error) {
	if c.uid == 0 {
		return Value{}, ErrNotAuthenticated
	}

	body := EncodeMethodCall("execute_kw",
		c.cfg.Database, c.uid, c.cfg.Password, model, method, args, map[string]any{})

	raw, err := c.transport.Post(ctx, c.url(objectEndpoint), body)
	if err != nil {
		return Value{}, fmt.Errorf("call %s.%s: %w", model, method, err)
	}
	result, err := DecodeMethodResponse([]byte(raw))
	if err != nil {
		return Value{}, fmt.Errorf("call %s.%s: %w", model, method, err)
	}
	return result, nil
}

func (c *Client) url(endpoint string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + endpoint
}

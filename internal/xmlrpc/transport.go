package xmlrpc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

// mime type of the wire dialect; Odoo rejects anything else.
const contentType = "text/xml"

// maxErrBody bounds how much of an error response is kept for diagnostics.
const maxErrBody = 1024

// Transport posts one request body and returns the raw response text.
type Transport interface {
	Post(ctx context.Context, url string, body []byte) (string, error)
}

// TransportError is a network or HTTP-level failure. Status is zero when the
// request never reached the server.
type TransportError struct {
	Status int
	Body   string
	Err    error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport: %v", e.Err)
	}
	return fmt.Sprintf("transport: status %d: %s", e.Status, e.Body)
}

func (e *TransportError) Unwrap() error { return e.Err }

// HTTPTransport is the production Transport. Fire-once: no retries and no
// timeout beyond the injected client's own.
type HTTPTransport struct {
	Client *http.Client
}

func NewHTTPTransport() *HTTPTransport {
	return &HTTPTransport{Client: http.DefaultClient}
}

func (t *HTTPTransport) Post(ctx context.Context, url string, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", &TransportError{Err: err}
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = int64(len(body))

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", &TransportError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &TransportError{Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &TransportError{Status: resp.StatusCode, Body: truncate(string(raw), maxErrBody)}
	}
	return string(raw), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

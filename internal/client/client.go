// Package client talks to the expohub JSON API. It backs the auth holder and the
// command-line front end.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"expohub/internal/auth"
)

const apiKeyHeader = "apikey"

// APIError is a non-2xx answer. Message is the server's {"error": ...} text.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return http.StatusText(e.Status)
	}
	return e.Message
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

type Client struct {
	base   *url.URL
	apiKey string
	http   *http.Client

	mu    sync.RWMutex
	token string

	changes chan auth.Change
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

func WithAPIKey(key string) Option { return func(c *Client) { c.apiKey = key } }

func WithToken(token string) Option { return func(c *Client) { c.token = token } }

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", baseURL)
	}
	c := &Client{
		base:    u,
		http:    &http.Client{Timeout: 15 * time.Second},
		changes: make(chan auth.Change, 16),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) setToken(t string) {
	c.mu.Lock()
	c.token = t
	c.mu.Unlock()
}

// dropToken clears the token if it is still sent and reports whether it did.
func (c *Client) dropToken(sent string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sent == "" || c.token != sent {
		return false
	}
	c.token = ""
	return true
}

func (c *Client) endpoint(path string, q url.Values) string {
	u := *c.base
	u.Path = c.base.Path + path
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Client) newRequest(ctx context.Context, method, path string, q url.Values, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, q), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	return req, nil
}

// do sends in as JSON (when non-nil) and decodes the answer into out (when non-nil).
func (c *Client) do(ctx context.Context, method, path string, q url.Values, in, out any) error {
	return c.call(ctx, true, method, path, q, in, out)
}

// anonymous is do without the session token. Its 401s are about the request itself
// and leave the session alone.
func (c *Client) anonymous(ctx context.Context, method, path string, in, out any) error {
	return c.call(ctx, false, method, path, nil, in, out)
}

func (c *Client) call(ctx context.Context, withToken bool, method, path string, q url.Values, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := c.newRequest(ctx, method, path, q, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if !withToken {
		req.Header.Del("Authorization")
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var e struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&e) == nil {
			apiErr.Message = e.Error
		}
		if resp.StatusCode == http.StatusUnauthorized {
			sent := strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")
			if c.dropToken(sent) {
				c.emit(auth.Change{Event: auth.SignedOut})
			}
		}
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", req.Method, req.URL.Path, err)
	}
	return nil
}

// ----------------------------
// Uploads
// ----------------------------

type Upload struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// UploadImage stores an image and returns its key and public URL.
func (c *Client) UploadImage(ctx context.Context, filename, contentType string, r io.Reader) (Upload, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreatePart(map[string][]string{
		"Content-Disposition": {fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(filename))},
		"Content-Type":        {contentType},
	})
	if err != nil {
		return Upload{}, err
	}
	if _, err := io.Copy(part, r); err != nil {
		return Upload{}, err
	}
	if err := mw.Close(); err != nil {
		return Upload{}, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/uploads", nil, &buf)
	if err != nil {
		return Upload{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	var out Upload
	return out, c.send(req, &out)
}

func (c *Client) DeleteImage(ctx context.Context, key string) error {
	return c.do(ctx, http.MethodDelete, "/api/uploads/"+key, nil, nil, nil)
}

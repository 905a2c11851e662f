// Package remote provides an HTTP client for the meeting-minutes authority.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wesm/minutes/internal/apperr"
	"github.com/wesm/minutes/internal/credential"
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// Client talks to the remote authority on behalf of the stored credential.
type Client struct {
	baseURL    string
	httpClient *http.Client
	store      credential.Store
	logger     *slog.Logger
}

// Config holds configuration for creating a client.
type Config struct {
	URL           string
	AllowInsecure bool
	Timeout       time.Duration
}

// New creates a new client. Every authenticated request reads the token
// from store; a 401 from any endpoint clears it.
func New(cfg Config, store credential.Store, logger *slog.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("remote URL is required")
	}
	if store == nil {
		return nil, fmt.Errorf("credential store is required")
	}

	parsedURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("URL scheme must be http or https, got: %s", parsedURL.Scheme)
	}

	if parsedURL.Host == "" {
		return nil, fmt.Errorf("remote URL must include a host (e.g., https://actas.example.com/api)")
	}

	// Enforce HTTPS unless AllowInsecure is set or the server is local
	if parsedURL.Scheme == "http" && !cfg.AllowInsecure && !isLoopback(parsedURL.Hostname()) {
		return nil, fmt.Errorf("HTTPS required for remote connections\n\n" +
			"Options:\n" +
			"  1. Use HTTPS: [remote] url = \"https://actas.example.com/api\"\n" +
			"  2. For trusted networks: add 'allow_insecure = true' to [remote] in config.toml")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.URL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		store:  store,
		logger: logger,
	}, nil
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// BaseURL returns the authority root, without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Store returns the credential store the client authenticates with.
func (c *Client) Store() credential.Store {
	return c.store
}

// request describes one call to the authority.
type request struct {
	method      string
	path        string
	body        io.Reader
	contentType string
	accept      string
	anonymous   bool
}

// do performs a request. Authenticated requests fail with
// apperr.ErrUnauthenticated before touching the network when no credential
// is stored, and any 401 clears the store and yields apperr.ErrSessionExpired.
// Transport failures are reported as apperr.ErrConnectivity. The caller owns
// the response body and must check the status of non-401 responses.
func (c *Client) do(ctx context.Context, r request) (*http.Response, error) {
	var token string
	if !r.anonymous {
		cred, err := c.store.Get(ctx)
		if err != nil {
			return nil, fmt.Errorf("read credential: %w", err)
		}
		if cred == nil {
			return nil, apperr.ErrUnauthenticated
		}
		token = cred.Token
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, r.body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Token "+token)
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	accept := r.accept
	if accept == "" {
		accept = "application/json"
	}
	req.Header.Set("Accept", accept)
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.logger.Debug("request failed", "method", r.method, "path", r.path, "request_id", requestID, "err", err)
		return nil, fmt.Errorf("%w: %s %s: %v", apperr.ErrConnectivity, r.method, r.path, err)
	}
	c.logger.Debug("request",
		"method", r.method,
		"path", r.path,
		"status", resp.StatusCode,
		"request_id", requestID,
		"duration", time.Since(start))

	if resp.StatusCode == http.StatusUnauthorized && !r.anonymous {
		resp.Body.Close()
		if err := c.store.Clear(ctx); err != nil {
			c.logger.Warn("failed to clear rejected credential", "err", err)
		}
		return nil, fmt.Errorf("%s %s: %w", r.method, r.path, apperr.ErrSessionExpired)
	}
	return resp, nil
}

// apiError represents an error response from the API.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

// handleErrorResponse reads an error response and returns an
// *apperr.ServerError carrying the server's explanation.
func handleErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil {
		for _, msg := range []string{apiErr.Message, apiErr.Error, apiErr.Detail} {
			if msg != "" {
				return &apperr.ServerError{Status: resp.StatusCode, Body: msg}
			}
		}
	}
	return &apperr.ServerError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

// getJSON performs an authenticated GET and decodes a 200 response into out.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.do(ctx, request{method: http.MethodGet, path: path})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return handleErrorResponse(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// loginResponse matches the authority's login answer. Older servers send
// "rol" instead of "role".
type loginResponse struct {
	Token   string          `json:"token"`
	UserID  json.RawMessage `json:"user_id"`
	Email   string          `json:"email"`
	Role    string          `json:"role"`
	Rol     string          `json:"rol"`
	IsAdmin bool            `json:"is_admin"`
}

// Login exchanges an email and password for a token and stores the
// resulting credential. A 400 or 401 means the pair was refused.
func (c *Client) Login(ctx context.Context, email, password string) (*credential.Credential, error) {
	payload, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, fmt.Errorf("encode login: %w", err)
	}

	resp, err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/login",
		body:        bytes.NewReader(payload),
		contentType: "application/json",
		anonymous:   true,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusBadRequest, http.StatusUnauthorized:
		return nil, fmt.Errorf("login %s: %w", email, apperr.ErrInvalidCredentials)
	default:
		return nil, handleErrorResponse(resp)
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return nil, fmt.Errorf("decode login response: %w", err)
	}

	role := lr.Role
	if role == "" {
		role = lr.Rol
	}
	cred := credential.Credential{
		Token: lr.Token,
		Profile: credential.UserProfile{
			ID:    flexibleID(lr.UserID),
			Email: lr.Email,
			Role:  credential.ParseRole(role, lr.IsAdmin),
		},
	}
	if err := c.store.Set(ctx, cred); err != nil {
		return nil, fmt.Errorf("store credential: %w", err)
	}
	return &cred, nil
}

// flexibleID accepts a JSON number or string identifier.
func flexibleID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// Probe confirms that the stored token is still accepted. It uses the
// record list, a cheap protected endpoint.
func (c *Client) Probe(ctx context.Context) error {
	resp, err := c.do(ctx, request{method: http.MethodGet, path: "/records"})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return handleErrorResponse(resp)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	return nil
}

func recordPath(id int64) string {
	return "/records/" + strconv.FormatInt(id, 10)
}

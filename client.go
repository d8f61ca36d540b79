package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/google/uuid"
)

const (
	// DefaultTimeout bounds every backend call. Timeouts are treated as
	// transient failures and never mutate session state.
	DefaultTimeout = 15 * time.Second

	tokenPath        = "/api/token/"
	tokenRefreshPath = "/api/token/refresh/"
)

// Client talks to the olympiad backend. It attaches the stored access token
// as a bearer credential to every request and, on a 401, performs exactly one
// silent refresh before retrying the original request once. A second 401
// after the retry is surfaced to the caller as-is.
//
// The client's only persistent side effect is destroying the credential pair
// when the refresh protocol fails terminally; it never touches Identity
// state. Interested components subscribe via OnCredentialsInvalidated.
type Client struct {
	baseURL string
	http    *http.Client
	creds   CredentialStore
	logger  Logger
	debug   bool

	refreshMu sync.Mutex

	invalidateMu sync.Mutex
	onInvalidate []func()
}

// NewClient returns a Client rooted at baseURL using the given credential
// store for the token pair.
func NewClient(baseURL string, creds CredentialStore) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
		creds:   creds,
		logger:  defLogger{},
	}
}

func (c *Client) WithLogger(logger Logger) *Client {
	if logger != nil {
		c.logger = logger
	}
	return c
}

func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	if httpClient != nil {
		c.http = httpClient
	}
	return c
}

func (c *Client) WithDebug(debug bool) *Client {
	c.debug = debug
	return c
}

// OnCredentialsInvalidated registers a callback fired after the client
// destroys the stored credential pair. The session store uses this to clear
// Identity without the client ever writing identity state itself.
func (c *Client) OnCredentialsInvalidated(fn func()) {
	if fn == nil {
		return
	}
	c.invalidateMu.Lock()
	defer c.invalidateMu.Unlock()
	c.onInvalidate = append(c.onInvalidate, fn)
}

// Credentials exposes the store shared with the session layer.
func (c *Client) Credentials() CredentialStore {
	return c.creds
}

func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.call(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) GetQuery(ctx context.Context, path string, query url.Values, out any) error {
	if len(query) > 0 {
		path = path + "?" + query.Encode()
	}
	return c.call(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.call(ctx, http.MethodPost, path, body, out)
}

func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.call(ctx, http.MethodPatch, path, body, out)
}

func (c *Client) Delete(ctx context.Context, path string) error {
	return c.call(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return errors.Wrap(err, errors.CategoryInternal, "failed to encode request body")
		}
	}

	status, respBody, err := c.send(ctx, method, path, payload)
	if err != nil {
		return err
	}

	// The token endpoints sit outside the refresh protocol: a 401 there is
	// a final answer, not an expired access token.
	if status == http.StatusUnauthorized && !isTokenEndpoint(path) {
		authErr := c.decodeError(status, respBody)

		if refreshErr := c.refreshAccessToken(ctx); refreshErr != nil {
			if IsTransient(refreshErr) {
				// The refresh never reached the backend, so the pair was
				// left alone; report the outage, not a dead session.
				return refreshErr
			}
			// Terminal: pair already destroyed, surface the original error.
			return authErr
		}

		// Marked as retried by construction: the retried response is
		// returned as-is, a second 401 included.
		status, respBody, err = c.send(ctx, method, path, payload)
		if err != nil {
			return err
		}
	}

	if status < 200 || status >= 300 {
		return c.decodeError(status, respBody)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return errors.Wrap(err, errors.CategoryInternal, "failed to decode response body")
		}
	}

	return nil
}

// send issues one HTTP exchange, attaching the current access token if one
// is stored. Requests with no stored token go out unauthenticated.
func (c *Client) send(ctx context.Context, method, path string, payload []byte) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, errors.Wrap(err, errors.CategoryInternal, "failed to build request")
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if pair, ok, _ := c.creds.Load(); ok && pair.Access != "" {
		req.Header.Set("Authorization", "Bearer "+pair.Access)
	}

	res, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("backend unreachable: %s %s: %v", method, path, err)
		return 0, nil, errors.Wrap(err, errors.CategoryOperation, "backend unreachable").
			WithTextCode(textCodeBackendUnavailable)
	}
	defer res.Body.Close()

	respBody, err := io.ReadAll(res.Body)
	if err != nil {
		return 0, nil, errors.Wrap(err, errors.CategoryOperation, "failed to read response").
			WithTextCode(textCodeBackendUnavailable)
	}

	if c.debug {
		c.logger.Debug("%s %s -> %d %s", method, path, res.StatusCode, print.MaybePrettyJSON(string(respBody)))
	}

	return res.StatusCode, respBody, nil
}

// refreshAccessToken performs the one-shot silent refresh. On success the
// new access token is stored next to the existing refresh token. On any
// failure the pair is destroyed as a unit and subscribers are notified.
func (c *Client) refreshAccessToken(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	pair, ok, err := c.creds.Load()
	if err != nil || !ok || pair.Refresh == "" {
		c.invalidateCredentials()
		return ErrNoCredentials
	}

	payload, err := json.Marshal(map[string]string{"refresh": pair.Refresh})
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to encode refresh request")
	}

	status, body, err := c.send(ctx, http.MethodPost, tokenRefreshPath, payload)
	if err != nil {
		// Transport failure: leave the pair alone, the credential was not
		// confirmed invalid.
		return err
	}

	if status != http.StatusOK {
		c.logger.Info("refresh token rejected with status %d", status)
		c.invalidateCredentials()
		return ErrRefreshRejected
	}

	var minted struct {
		Access string `json:"access"`
	}
	if err := json.Unmarshal(body, &minted); err != nil || minted.Access == "" {
		c.invalidateCredentials()
		return ErrRefreshRejected
	}

	if err := c.creds.Save(pair.WithAccess(minted.Access)); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to store refreshed access token")
	}

	c.logger.Debug("access token refreshed")
	return nil
}

func (c *Client) invalidateCredentials() {
	if err := c.creds.Clear(); err != nil {
		c.logger.Error("failed to clear credentials: %v", err)
	}

	c.invalidateMu.Lock()
	callbacks := make([]func(), len(c.onInvalidate))
	copy(callbacks, c.onInvalidate)
	c.invalidateMu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}

// decodeError maps a backend failure response into the error taxonomy.
func (c *Client) decodeError(status int, body []byte) error {
	switch {
	case status == http.StatusUnauthorized:
		return errors.New(backendDetail(body, "invalid or expired credential"), errors.CategoryAuth).
			WithCode(errors.CodeUnauthorized).
			WithTextCode(textCodeSessionExpired).
			WithMetadata(map[string]any{"status": status})
	case status == http.StatusForbidden:
		return errors.New(backendDetail(body, "not permitted"), errors.CategoryAuthz).
			WithCode(errors.CodeForbidden).
			WithTextCode(textCodeNotPermitted).
			WithMetadata(map[string]any{"status": status})
	case status == http.StatusBadRequest:
		if fields, ok := decodeFieldErrors(body); ok {
			return NewValidationError(fields)
		}
		return errors.New(backendDetail(body, "bad request"), errors.CategoryValidation).
			WithCode(errors.CodeBadRequest).
			WithMetadata(map[string]any{"status": status})
	case status == http.StatusNotFound:
		return errors.New("resource not found", errors.CategoryNotFound).
			WithCode(errors.CodeNotFound).
			WithMetadata(map[string]any{"status": status})
	case status >= 500:
		return errors.New(backendDetail(body, "backend error"), errors.CategoryInternal).
			WithCode(errors.CodeInternal).
			WithTextCode(textCodeBackendUnavailable).
			WithMetadata(map[string]any{"status": status})
	default:
		return errors.New(backendDetail(body, "unexpected backend response"), errors.CategoryOperation).
			WithMetadata(map[string]any{"status": status})
	}
}

// decodeFieldErrors parses Django-style field error bodies, which arrive
// either as {"field": ["msg", ...]} or {"field": "msg"}.
func decodeFieldErrors(body []byte) (FieldErrors, bool) {
	raw := map[string]any{}
	if err := json.Unmarshal(body, &raw); err != nil || len(raw) == 0 {
		return nil, false
	}

	fields := FieldErrors{}
	for key, val := range raw {
		switch v := val.(type) {
		case string:
			fields[key] = []string{v}
		case []any:
			msgs := make([]string, 0, len(v))
			for _, item := range v {
				if s, ok := item.(string); ok {
					msgs = append(msgs, s)
				}
			}
			if len(msgs) > 0 {
				fields[key] = msgs
			}
		}
	}

	if len(fields) == 0 {
		return nil, false
	}
	return fields, true
}

func backendDetail(body []byte, fallback string) string {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Detail != "" {
		return payload.Detail
	}
	return fallback
}

func isTokenEndpoint(path string) bool {
	clean := path
	if i := strings.IndexByte(clean, '?'); i >= 0 {
		clean = clean[:i]
	}
	return clean == tokenPath || clean == tokenRefreshPath
}

package aircloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

const (
	// DefaultBaseURL is the AirCloud Home cloud endpoint.
	DefaultBaseURL = "https://api-kuma.aircloudhome.com"

	// DefaultTimeout bounds every request, sign-in included.
	DefaultTimeout = 10 * time.Second

	// maxBodySize caps how much of a response body is read.
	maxBodySize = 1 << 20

	pathSignIn  = "/iam/auth/sign-in"
	pathGroups  = "/iam/family-account/v2/groups"
	pathIDUList = "/rac/ownership/groups/%d/idu-list"
	pathControl = "/rac/basic-idu-control/general-control-command/%d"
)

// Logger defines the logging interface used by the Client.
// Compatible with *slog.Logger and the daemon's logging.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Client talks to the AirCloud Home REST API on behalf of one account.
//
// The client owns the account's session. It signs in lazily on the first
// authenticated call, and discards the session whenever the API rejects
// it, so the next call signs in again. There is no internal retry.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	baseURL    string
	creds      Credentials
	httpClient *http.Client
	timeout    time.Duration
	logger     Logger

	sessionMu sync.Mutex
	session   Session
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if u := strings.TrimRight(strings.TrimSpace(baseURL), "/"); u != "" {
			c.baseURL = u
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger for request diagnostics.
func WithLogger(l Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a client for one account. No request is made until
// the first call.
func NewClient(creds Credentials, opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		creds:      creds,
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
		logger:     noopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ValidateCredentials performs one sign-in with a throw-away client.
func ValidateCredentials(ctx context.Context, creds Credentials, opts ...Option) error {
	_, err := NewClient(creds, opts...).SignIn(ctx)
	return err
}

// Email returns the account the client acts for.
func (c *Client) Email() string {
	return c.creds.Email
}

// HasSession reports whether a session is currently held.
func (c *Client) HasSession() bool {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	return c.session.valid()
}

// SignIn authenticates with the account credentials and replaces the held
// session on success.
func (c *Client) SignIn(ctx context.Context) (Session, error) {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	return c.signInLocked(ctx)
}

func (c *Client) signInLocked(ctx context.Context) (Session, error) {
	const op = "sign-in"

	if c.creds.Email == "" || c.creds.Password == "" {
		return Session{}, fmt.Errorf("%w: %s: email and password are required", ErrAuthentication, op)
	}

	body, err := c.do(ctx, op, http.MethodPost, pathSignIn, nil,
		signInRequest{Email: c.creds.Email, Password: c.creds.Password}, Session{})
	if err != nil {
		if IsAuthentication(err) {
			c.session = Session{}
		}
		return Session{}, err
	}

	var resp signInResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Session{}, fmt.Errorf("%w: %s: decoding response: %w", ErrGeneral, op, err)
	}
	if resp.Token == "" {
		return Session{}, fmt.Errorf("%w: %s: response carries no token", ErrGeneral, op)
	}

	c.session = Session{token: &oauth2.Token{
		AccessToken:  resp.Token,
		RefreshToken: resp.RefreshToken,
		TokenType:    "Bearer",
	}}
	c.logger.Debug("signed in to aircloud", "account", c.creds)
	return c.session, nil
}

// currentSession returns the held session, signing in first if none is held.
func (c *Client) currentSession(ctx context.Context) (Session, error) {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	if c.session.valid() {
		return c.session, nil
	}
	return c.signInLocked(ctx)
}

// discardSession drops the session if it is still the one that was
// rejected. A session replaced by a concurrent sign-in is kept.
func (c *Client) discardSession(rejected Session) {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	if c.session.token == rejected.token {
		c.session = Session{}
	}
}

// FamilyGroups lists the homes under the account.
func (c *Client) FamilyGroups(ctx context.Context) ([]FamilyGroup, error) {
	const op = "list family groups"

	body, err := c.authenticated(ctx, op, http.MethodGet, pathGroups, nil, nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %s: decoding response: %w", ErrGeneral, op, err)
	}

	var items []json.RawMessage
	if len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, &items); err != nil {
			c.logger.Warn("family group result is not a list", "op", op)
			items = nil
		}
	}

	groups := make([]FamilyGroup, 0, len(items))
	for _, item := range items {
		groups = append(groups, decodeFamilyGroup(item))
	}
	return groups, nil
}

// Devices lists the raw indoor-unit payloads of one family group. A
// response that is valid JSON but not a list yields an empty list.
func (c *Client) Devices(ctx context.Context, familyID int64) ([]json.RawMessage, error) {
	const op = "list devices"

	body, err := c.authenticated(ctx, op, http.MethodGet, fmt.Sprintf(pathIDUList, familyID), nil, nil)
	if err != nil {
		return nil, err
	}

	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: %s: response is not JSON", ErrGeneral, op)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		c.logger.Warn("idu-list response is not a list", "family_id", familyID)
		return []json.RawMessage{}, nil
	}
	if items == nil {
		items = []json.RawMessage{}
	}
	return items, nil
}

// ControlDevice sends a general control command to one indoor unit.
func (c *Client) ControlDevice(ctx context.Context, racID, familyID int64, cmd ControlCommand) (CommandAck, error) {
	const op = "control device"

	query := url.Values{}
	query.Set("familyId", strconv.FormatInt(familyID, 10))

	body, err := c.authenticated(ctx, op, http.MethodPut, fmt.Sprintf(pathControl, racID), query, cmd.request())
	if err != nil {
		return CommandAck{}, err
	}

	ack := CommandAck{Raw: body}
	if len(bytes.TrimSpace(body)) == 0 {
		return ack, nil
	}

	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return CommandAck{}, fmt.Errorf("%w: %s: decoding response: %w", ErrGeneral, op, err)
	}
	switch id := fields["commandId"].(type) {
	case string:
		ack.CommandID = id
	case float64:
		ack.CommandID = strconv.FormatFloat(id, 'f', -1, 64)
	}
	return ack, nil
}

// authenticated performs a request carrying the bearer token, signing in
// first when no session is held.
func (c *Client) authenticated(ctx context.Context, op, method, path string, query url.Values, payload any) ([]byte, error) {
	session, err := c.currentSession(ctx)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, op, method, path, query, payload, session)
}

// do performs one HTTP exchange and classifies its failure. A valid
// session is attached as a bearer token and discarded if rejected.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, payload any, session Session) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: encoding request: %w", ErrGeneral, op, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: building request: %w", ErrGeneral, op, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if session.valid() {
		session.setAuthHeader(req)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCommunication, op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: reading response: %w", ErrCommunication, op, err)
	}

	c.logger.Debug("aircloud request",
		"op", op,
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		if session.valid() {
			c.discardSession(session)
		}
		return nil, fmt.Errorf("%w: %w", ErrAuthentication, &StatusError{Op: op, StatusCode: resp.StatusCode})
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("%w: %w", ErrCommunication, &StatusError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Body:       truncate(string(body), 200),
		})
	}

	return body, nil
}

func decodeFamilyGroup(raw json.RawMessage) FamilyGroup {
	group := FamilyGroup{Raw: raw}

	var fields map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return group
	}

	switch id := fields["familyId"].(type) {
	case json.Number:
		if n, err := id.Int64(); err == nil {
			group.FamilyID = n
		}
	case string:
		if n, err := strconv.ParseInt(id, 10, 64); err == nil {
			group.FamilyID = n
		}
	}
	if name, ok := fields["familyName"].(string); ok {
		group.Name = name
	}
	return group
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

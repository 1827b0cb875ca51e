// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/bureau-foundation/calltally/lib/credential"
)

const (
	clientAPI = "/_matrix/client/v3"

	// maxResponseSize caps how much of a response body is read. Sync
	// batches are the largest responses the bot sees.
	maxResponseSize int64 = 64 << 20
)

// ClientConfig configures a Client.
type ClientConfig struct {
	// HomeserverURL is the homeserver base URL, such as
	// "https://matrix.example.org". Required.
	HomeserverURL string

	// HTTPClient defaults to http.DefaultClient. Its timeout must
	// exceed the /sync long-poll wait.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Client talks to one homeserver without credentials. Sessions created
// from it share its connection pool.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient validates config and returns a Client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.HomeserverURL == "" {
		return nil, fmt.Errorf("messaging: HomeserverURL is required")
	}
	parsed, err := url.Parse(config.HomeserverURL)
	if err != nil {
		return nil, fmt.Errorf("messaging: invalid HomeserverURL %q: %w", config.HomeserverURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("messaging: HomeserverURL %q must be http or https", config.HomeserverURL)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	// Paths are appended to the string form: url.URL would re-encode
	// the escaped room IDs.
	return &Client{
		baseURL:    strings.TrimRight(config.HomeserverURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// CloseIdleConnections drops pooled connections so the next request
// dials again. The sync loop calls it after a failed long-poll.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

// ServerVersions lists the protocol versions the homeserver supports. It
// needs no token and doubles as a reachability check.
func (c *Client) ServerVersions(ctx context.Context) (*ServerVersionsResponse, error) {
	var response ServerVersionsResponse
	if err := c.do(ctx, apiCall{method: http.MethodGet, path: "/_matrix/client/versions"}, &response); err != nil {
		return nil, fmt.Errorf("messaging: server versions: %w", err)
	}
	return &response, nil
}

// SessionFromToken wraps token in a session for userID without asking
// the server. The session owns token from here on.
func (c *Client) SessionFromToken(userID string, token *credential.Token) *DirectSession {
	return &DirectSession{client: c, accessToken: token, userID: userID}
}

// Authenticate asks the homeserver whom token belongs to and returns a
// session for that user. A non-empty expectedUserID must match. The
// session owns token; on error token is closed.
func (c *Client) Authenticate(ctx context.Context, expectedUserID string, token *credential.Token) (*DirectSession, error) {
	session := c.SessionFromToken(expectedUserID, token)
	userID, err := session.WhoAmI(ctx)
	if err == nil && expectedUserID != "" && userID != expectedUserID {
		err = fmt.Errorf("messaging: access token belongs to %s, configured user is %s", userID, expectedUserID)
	}
	if err != nil {
		session.Close()
		return nil, err
	}
	session.userID = userID

	c.logger.Info("authenticated to matrix", "user_id", userID, "homeserver", c.baseURL)
	return session, nil
}

// apiCall is one client-server API request.
type apiCall struct {
	method string
	path   string
	query  url.Values

	// body is sent as JSON when non-nil.
	body any

	token *credential.Token
}

// do performs call and decodes a successful JSON response into result,
// which may be nil. An error response carrying an errcode is returned
// as a *MatrixError.
func (c *Client) do(ctx context.Context, call apiCall, result any) error {
	target := c.baseURL + call.path
	if len(call.query) > 0 {
		target += "?" + call.query.Encode()
	}

	var body io.Reader
	if call.body != nil {
		encoded, err := json.Marshal(call.body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}
	request, err := http.NewRequestWithContext(ctx, call.method, target, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if call.body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if call.token != nil {
		request.Header.Set("Authorization", "Bearer "+call.token.String())
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("%s %s: %w", call.method, call.path, err)
	}
	defer response.Body.Close()

	data, err := io.ReadAll(io.LimitReader(response.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("reading %s response: %w", call.path, err)
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		return errorResponse(call, response.StatusCode, data)
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("decoding %s response: %w", call.path, err)
	}
	return nil
}

// errorResponse turns a non-2xx body into an error. Proxies in front of
// the homeserver answer with HTML, which is reported as-is.
func errorResponse(call apiCall, status int, data []byte) error {
	matrixErr := &MatrixError{StatusCode: status}
	if json.Unmarshal(data, matrixErr) != nil || matrixErr.Code == "" {
		return fmt.Errorf("unexpected %d response to %s %s: %.200s", status, call.method, call.path, data)
	}
	return matrixErr
}

// roomPath is the client API path of a room endpoint. Every segment is
// path-escaped.
func roomPath(roomID string, segments ...string) string {
	var builder strings.Builder
	builder.WriteString(clientAPI + "/rooms/")
	builder.WriteString(url.PathEscape(roomID))
	for _, segment := range segments {
		builder.WriteByte('/')
		builder.WriteString(url.PathEscape(segment))
	}
	return builder.String()
}

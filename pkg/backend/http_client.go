package backend

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
	"time"

	"github.com/account-gate/accountgate/internal/fingerprint"
	"github.com/account-gate/accountgate/pkg/account"
	"github.com/account-gate/accountgate/pkg/apierror"
)

// Internal API paths consumed by the HTTP client.
const (
	pathVerifyToken     = "/internal/auth/verify-token"
	pathUserByID        = "/internal/users/%s"
	pathUserExists      = "/internal/users/%s/exists"
	pathSessionInfo     = "/internal/session/info"
	pathSessionValidate = "/internal/session/validate"
)

// defaultTimeout is the default per-request timeout for HTTP calls.
const defaultTimeout = 5 * time.Second

// HTTPClient talks to the account backend over its internal HTTP API.
type HTTPClient struct {
	baseURL    string
	serviceKey string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

// HTTPOption is a functional option for configuring an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPTimeout sets the per-request timeout. Default: 5 seconds.
func WithHTTPTimeout(d time.Duration) HTTPOption {
	return func(c *HTTPClient) { c.timeout = d }
}

// WithServiceKey sets the internal service key sent as a bearer credential
// on every backend call.
func WithServiceKey(key string) HTTPOption {
	return func(c *HTTPClient) { c.serviceKey = key }
}

// WithHTTPClient sets a custom http.Client. Useful for testing, proxying,
// or custom transport configurations.
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(c *HTTPClient) { c.httpClient = hc }
}

// WithHTTPLogger sets the logger. Default: slog.Default().
func WithHTTPLogger(l *slog.Logger) HTTPOption {
	return func(c *HTTPClient) { c.logger = l }
}

// NewHTTPClient creates an HTTP transport client for the backend at baseURL.
func NewHTTPClient(baseURL string, opts ...HTTPOption) *HTTPClient {
	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: defaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	return c
}

// VerifyToken implements Backend.
func (c *HTTPClient) VerifyToken(ctx context.Context, token string, kind account.TokenKind) (*account.TokenVerification, error) {
	c.logger.Debug("verifying token over http",
		"token_kind", string(kind),
		"token_fp", fingerprint.Token(token),
	)
	body := map[string]string{"token": token, "tokenType": string(kind)}
	var result account.TokenVerification
	if err := c.doRequest(ctx, http.MethodPost, pathVerifyToken, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetUserByID implements Backend.
func (c *HTTPClient) GetUserByID(ctx context.Context, accountID string) (*account.Account, error) {
	var result account.Account
	path := fmt.Sprintf(pathUserByID, url.PathEscape(accountID))
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CheckUserExists implements Backend.
func (c *HTTPClient) CheckUserExists(ctx context.Context, accountID string) (bool, error) {
	var result existsPayload
	path := fmt.Sprintf(pathUserExists, url.PathEscape(accountID))
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &result); err != nil {
		return false, err
	}
	return result.Exists, nil
}

// GetSessionInfo implements Backend.
func (c *HTTPClient) GetSessionInfo(ctx context.Context, sessionCookie string) (*account.SessionInfo, error) {
	body := map[string]string{"sessionCookie": sessionCookie}
	var result account.SessionInfo
	if err := c.doRequest(ctx, http.MethodPost, pathSessionInfo, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ValidateSession implements Backend.
func (c *HTTPClient) ValidateSession(ctx context.Context, accountID, sessionCookie string) (bool, error) {
	body := map[string]string{"accountId": accountID, "sessionCookie": sessionCookie}
	var result validPayload
	if err := c.doRequest(ctx, http.MethodPost, pathSessionValidate, body, &result); err != nil {
		return false, err
	}
	return result.Valid, nil
}

// doRequest performs one HTTP round trip and decodes the response envelope.
// Backend-reported errors keep their wire code; transport failures are
// classified as connection or timeout errors.
func (c *HTTPClient) doRequest(ctx context.Context, method, path string, body, result any) error {
	reqURL := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return apierror.Wrap(apierror.KindServerError, "failed to marshal request body", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return apierror.Wrap(apierror.KindServerError, "failed to create request", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.serviceKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.serviceKey)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return classifyTransportError(method+" "+path, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return apierror.Wrap(apierror.KindConnectionError, "failed to read response body", err)
	}

	var env Envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		// Non-envelope body: a proxy error page or similar.
		return apierror.Wrap(apierror.KindServerError,
			fmt.Sprintf("backend returned %d with unexpected body", httpResp.StatusCode), err)
	}

	return decodeEnvelope(&env, result)
}

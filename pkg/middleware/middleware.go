// Package middleware implements the AccountGate validation pipeline: an
// ordered chain of net/http middleware that converts a raw request into an
// authenticated, authorized, consistent security context. Steps are
// independently composable; each one either passes the request through,
// writes a terminal response, or redirects to the token-refresh flow.
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/account-gate/accountgate/internal/ctxkey"
	"github.com/account-gate/accountgate/pkg/backend"
)

// Middleware is the standard net/http middleware shape used by every step.
type Middleware = func(http.Handler) http.Handler

// Default configuration values.
const (
	// DefaultAccountParam is the request parameter holding the account
	// identifier.
	DefaultAccountParam = "accountId"
	// DefaultSessionCookie is the browser session cookie name.
	DefaultSessionCookie = "account_session"
	// RefreshTokenHeader carries the refresh token.
	RefreshTokenHeader = "x-refresh-token"
	// PathPrefixHeader carries an upstream proxy's stripped path prefix,
	// honored when building the refresh redirect URL.
	PathPrefixHeader = "x-path-prefix"
)

// Account-scoped cookie name prefixes. The deployed convention is the
// prefix form: access_token_<accountId> / refresh_token_<accountId>.
const (
	accessCookiePrefix  = "access_token_"
	refreshCookiePrefix = "refresh_token_"
)

// SDK is the middleware composer. It holds the backend handle and the
// immutable pipeline configuration; all per-request state lives in the
// RequestContext.
type SDK struct {
	backend       backend.Backend
	accountParam  string
	sessionCookie string
	refreshBase   string
	logger        *slog.Logger
	metrics       *Metrics
}

// Option is a functional option for configuring the SDK.
type Option func(*SDK)

// WithAccountParam sets the request-parameter name holding the account
// identifier. Default: "accountId".
func WithAccountParam(name string) Option {
	return func(s *SDK) { s.accountParam = name }
}

// WithSessionCookie sets the session cookie name. Default: "account_session".
func WithSessionCookie(name string) Option {
	return func(s *SDK) { s.sessionCookie = name }
}

// WithRefreshRedirectBase sets the base URL of the external token-refresh
// flow. When configured, token expiry/invalidity responds with a 302
// redirect carrying the original request path; when empty, a structured
// 401 is returned instead.
func WithRefreshRedirectBase(base string) Option {
	return func(s *SDK) { s.refreshBase = base }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *SDK) { s.logger = l }
}

// WithMetrics attaches Prometheus metrics recording per-stage outcomes.
func WithMetrics(m *Metrics) Option {
	return func(s *SDK) { s.metrics = m }
}

// New creates the middleware composer over the given backend. The backend
// is usually a *backend.Selector, but any Backend works, which keeps every
// step independently unit-testable.
func New(b backend.Backend, opts ...Option) *SDK {
	s := &SDK{
		backend:       b,
		accountParam:  DefaultAccountParam,
		sessionCookie: DefaultSessionCookie,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Inject is the first pipeline step. It attaches the RequestContext, a
// request ID, and an enriched logger to the request so every later step and
// the terminal handler share them.
func (s *SDK) Inject() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.New().String()
			}

			enriched := s.logger.With("request_id", requestID)

			r, _ = withRequestContext(r)
			ctx := context.WithValue(r.Context(), ctxkey.RequestIDKey{}, requestID)
			ctx = context.WithValue(ctx, ctxkey.LoggerKey{}, enriched)

			w.Header().Set("X-Request-ID", requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LoggerFromContext retrieves the enriched logger from context.
// Returns slog.Default() if no logger is in context.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(ctxkey.LoggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// RequestIDFromContext returns the request ID attached by Inject, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxkey.RequestIDKey{}).(string)
	return id
}

// accountParamValue reads the account identifier from the request: the
// route path value first (net/http 1.22+ patterns and chi both populate
// it), then the query string.
func (s *SDK) accountParamValue(r *http.Request) string {
	if v := r.PathValue(s.accountParam); v != "" {
		return v
	}
	return r.URL.Query().Get(s.accountParam)
}

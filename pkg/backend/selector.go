package backend

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/account-gate/accountgate/pkg/account"
	"github.com/account-gate/accountgate/pkg/apierror"
)

// Transport names the preferred transport for backend calls.
type Transport string

const (
	// TransportHTTP always calls the HTTP backend.
	TransportHTTP Transport = "http"
	// TransportSocket prefers the socket backend when it is connected,
	// falling back to HTTP per call.
	TransportSocket Transport = "socket"
)

// forceHTTPKey marks a context as HTTP-only for the current call.
type forceHTTPKey struct{}

// ForceHTTP returns a context that makes the Selector use the HTTP
// transport for calls made with it, regardless of the configured
// preference. This replaces the mutate-preference-and-restore pattern with
// an explicit per-call override.
func ForceHTTP(ctx context.Context) context.Context {
	return context.WithValue(ctx, forceHTTPKey{}, true)
}

// Selector routes each backend call to the preferred transport. The
// socket-preference predicate is re-evaluated on every call because the
// connection state is volatile. A socket-level failure demotes the call to
// one HTTP attempt for the same logical operation; the socket call is never
// retried. Backend-reported failures (invalid token, unknown user) are not
// transport failures and propagate as-is.
type Selector struct {
	http   *HTTPClient
	socket *SocketClient
	prefer Transport
	logger *slog.Logger
	tracer trace.Tracer
}

// SelectorOption is a functional option for configuring a Selector.
type SelectorOption func(*Selector)

// WithSocket attaches a socket client and makes it the preferred transport.
func WithSocket(sc *SocketClient) SelectorOption {
	return func(s *Selector) {
		s.socket = sc
		s.prefer = TransportSocket
	}
}

// WithTransport sets the preferred transport explicitly.
func WithTransport(t Transport) SelectorOption {
	return func(s *Selector) { s.prefer = t }
}

// WithSelectorLogger sets the logger. Default: slog.Default().
func WithSelectorLogger(l *slog.Logger) SelectorOption {
	return func(s *Selector) { s.logger = l }
}

// NewSelector creates a Selector over the mandatory HTTP client and an
// optional socket client.
func NewSelector(httpClient *HTTPClient, opts ...SelectorOption) *Selector {
	s := &Selector{
		http:   httpClient,
		prefer: TransportHTTP,
		logger: slog.Default(),
		tracer: otel.Tracer("accountgate/backend"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// shouldUseSocket reports whether the next call goes over the socket: the
// socket transport must be preferred, a socket client must exist, and its
// connection must be live. The per-call ForceHTTP override wins over all.
func (s *Selector) shouldUseSocket(ctx context.Context) bool {
	if forced, _ := ctx.Value(forceHTTPKey{}).(bool); forced {
		return false
	}
	return s.prefer == TransportSocket && s.socket != nil && s.socket.Connected()
}

// isSocketFailure reports whether an error from the socket transport is a
// socket-level failure that warrants the HTTP fallback, as opposed to a
// logical failure reported by the backend itself.
func isSocketFailure(err error) bool {
	if errors.Is(err, ErrSocketClosed) {
		return true
	}
	switch apierror.KindOf(err) {
	case apierror.KindConnectionError, apierror.KindTimeout, apierror.KindServiceUnavailable:
		return true
	default:
		return false
	}
}

// selectCall runs one logical operation on the selected transport, with the
// socket-to-HTTP fallback. Generic helper because the five operations have
// different result types but identical selection semantics.
func selectCall[T any](ctx context.Context, s *Selector, op string, fn func(context.Context, Backend) (T, error)) (T, error) {
	ctx, span := s.tracer.Start(ctx, op)
	defer span.End()

	if s.shouldUseSocket(ctx) {
		span.SetAttributes(attribute.String("backend.transport", string(TransportSocket)))
		result, err := fn(ctx, s.socket)
		if err == nil || !isSocketFailure(err) {
			if err != nil {
				span.SetStatus(codes.Error, err.Error())
			}
			return result, err
		}
		s.logger.Warn("socket call failed, falling back to http",
			"operation", op,
			"error", err,
		)
		span.AddEvent("socket fallback to http")
	}

	span.SetAttributes(attribute.String("backend.transport", string(TransportHTTP)))
	result, err := fn(ctx, s.http)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

// VerifyToken implements Backend.
func (s *Selector) VerifyToken(ctx context.Context, token string, kind account.TokenKind) (*account.TokenVerification, error) {
	return selectCall(ctx, s, "backend.verify_token", func(ctx context.Context, b Backend) (*account.TokenVerification, error) {
		return b.VerifyToken(ctx, token, kind)
	})
}

// GetUserByID implements Backend.
func (s *Selector) GetUserByID(ctx context.Context, accountID string) (*account.Account, error) {
	return selectCall(ctx, s, "backend.get_user_by_id", func(ctx context.Context, b Backend) (*account.Account, error) {
		return b.GetUserByID(ctx, accountID)
	})
}

// CheckUserExists implements Backend.
func (s *Selector) CheckUserExists(ctx context.Context, accountID string) (bool, error) {
	return selectCall(ctx, s, "backend.check_user_exists", func(ctx context.Context, b Backend) (bool, error) {
		return b.CheckUserExists(ctx, accountID)
	})
}

// GetSessionInfo implements Backend.
func (s *Selector) GetSessionInfo(ctx context.Context, sessionCookie string) (*account.SessionInfo, error) {
	return selectCall(ctx, s, "backend.get_session_info", func(ctx context.Context, b Backend) (*account.SessionInfo, error) {
		return b.GetSessionInfo(ctx, sessionCookie)
	})
}

// ValidateSession implements Backend.
func (s *Selector) ValidateSession(ctx context.Context, accountID, sessionCookie string) (bool, error) {
	return selectCall(ctx, s, "backend.validate_session", func(ctx context.Context, b Backend) (bool, error) {
		return b.ValidateSession(ctx, accountID, sessionCookie)
	})
}

// Compile-time checks that all transports implement Backend.
var (
	_ Backend = (*HTTPClient)(nil)
	_ Backend = (*Selector)(nil)
)

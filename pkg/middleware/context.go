package middleware

import (
	"context"
	"net/http"

	"github.com/account-gate/accountgate/pkg/account"
)

// requestContextKey is the single context key under which the pipeline's
// RequestContext lives.
type requestContextKey struct{}

// RequestContext is the per-request accumulator of validated identity and
// session data. It is created once by the Inject step, owned exclusively by
// the pipeline for the request's lifetime, and append-only by convention:
// each middleware step writes only the fields of its own concern and never
// mutates fields written by an earlier step.
type RequestContext struct {
	// AccountID is the validated 24-hex account identifier from the
	// request parameter. Written by AuthenticateSession.
	AccountID string

	// Account is the record loaded from the backend. Written by
	// ValidateAccountAccess.
	Account *account.Account

	// OAuthAccount and LocalAccount are type-tagged convenience references
	// to Account; exactly one is non-nil after ValidateAccountAccess.
	OAuthAccount *account.Account
	LocalAccount *account.Account

	// AccessToken and RefreshToken are the raw token strings extracted
	// from the request. Written by ValidateTokenAccess.
	AccessToken  string
	RefreshToken string

	// AccessVerification and RefreshVerification are the backend's
	// verification results for the tokens that were present. Written by
	// ValidateTokenAccess.
	AccessVerification  *account.TokenVerification
	RefreshVerification *account.TokenVerification

	// Provider is the embedded oauth provider credential, present only
	// for oauth accounts. Written by ValidateTokenAccess.
	Provider *account.ProviderToken

	// Session is the resolved browser session view. Written by LoadSession.
	Session *account.SessionInfo
}

// FromContext returns the pipeline's RequestContext, or nil if the request
// did not pass through the Inject step.
func FromContext(ctx context.Context) *RequestContext {
	rc, _ := ctx.Value(requestContextKey{}).(*RequestContext)
	return rc
}

// FromRequest is a convenience wrapper over FromContext for handlers.
func FromRequest(r *http.Request) *RequestContext {
	return FromContext(r.Context())
}

// withRequestContext attaches a fresh RequestContext to the request.
func withRequestContext(r *http.Request) (*http.Request, *RequestContext) {
	rc := &RequestContext{}
	ctx := context.WithValue(r.Context(), requestContextKey{}, rc)
	return r.WithContext(ctx), rc
}

package middleware

import "net/http"

// Chain composes middleware in declaration order: the first element is the
// outermost wrapper and runs first. The composer performs no logic beyond
// ordered invocation.
func Chain(mws ...Middleware) Middleware {
	return func(next http.Handler) http.Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

// Authenticate is the mandatory base chain: inject request context, validate
// the account-identifier shape, confirm and load the account, then verify
// token ownership. The terminal handler runs only if every step passed.
func (s *SDK) Authenticate() Middleware {
	return Chain(
		s.Inject(),
		s.AuthenticateSession(),
		s.ValidateAccountAccess(),
		s.ValidateTokenAccess(),
	)
}

// Authorize is the Authenticate chain plus session-consistency enforcement:
// the session cookie is mandatory and must have authenticated the target
// account.
func (s *SDK) Authorize() Middleware {
	return Chain(
		s.Authenticate(),
		s.LoadSession(SessionOptions{Required: true, ValidateAccount: true}),
	)
}

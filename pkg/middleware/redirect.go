package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/account-gate/accountgate/pkg/apierror"
)

// handleTokenError classifies a token failure and responds: a deterministic
// refresh redirect when the error is recoverable and the redirect
// preconditions hold, a 503 for transport-layer failures (redirecting on
// infrastructure failure would create a refresh loop), and a structured 401
// otherwise.
func (s *SDK) handleTokenError(w http.ResponseWriter, r *http.Request, rc *RequestContext, err error) {
	logger := LoggerFromContext(r.Context())
	kind := apierror.KindOf(err)
	s.observeBackendError(string(kind))

	switch kind {
	case apierror.KindTokenExpired, apierror.KindTokenInvalid:
		if rc == nil || rc.AccountID == "" {
			// No account identifier means the composer was misused; a
			// redirect target cannot be built.
			s.observe(stageToken, outcomeFail)
			apierror.Write(w, logger, apierror.Wrap(apierror.KindServerError,
				"internal server error", err))
			return
		}
		if s.refreshBase == "" {
			s.observe(stageToken, outcomeFail)
			apierror.Write(w, logger, apierror.Wrap(apierror.KindAuthFailed,
				"authentication failed", err))
			return
		}
		target := BuildRefreshRedirect(s.refreshBase, rc.AccountID, originalPath(r))
		logger.Info("redirecting to token refresh",
			"account_id", rc.AccountID,
			"code", string(kind),
		)
		s.observe(stageToken, outcomeRedirect)
		s.observeRedirect()
		http.Redirect(w, r, target, http.StatusFound)

	case apierror.KindConnectionError, apierror.KindTimeout:
		s.observe(stageToken, outcomeFail)
		apierror.Write(w, logger, apierror.Wrap(apierror.KindServiceUnavailable,
			"authentication backend unavailable", err))

	default:
		s.observe(stageToken, outcomeFail)
		apierror.Write(w, logger, apierror.Wrap(apierror.KindAuthFailed,
			"authentication failed", err))
	}
}

// BuildRefreshRedirect constructs the deterministic refresh-redirect URL:
// <base>/<accountId>/tokens/refresh?redirectUrl=<escaped original path>.
// The original path survives the refresh round-trip so the caller's deep
// link is preserved.
func BuildRefreshRedirect(base, accountID, originalPath string) string {
	return strings.TrimRight(base, "/") + "/" + accountID +
		"/tokens/refresh?redirectUrl=" + url.QueryEscape(originalPath)
}

// originalPath returns the request's path plus query, prefixed with the
// x-path-prefix header when an upstream proxy stripped a mount prefix.
func originalPath(r *http.Request) string {
	path := r.URL.RequestURI()
	if prefix := r.Header.Get(PathPrefixHeader); prefix != "" {
		path = strings.TrimRight(prefix, "/") + path
	}
	return path
}

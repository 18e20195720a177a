package middleware

import (
	"net/http"

	"github.com/account-gate/accountgate/pkg/apierror"
)

// SessionOptions control the LoadSession step.
type SessionOptions struct {
	// Required fails the request with 401 when the session cookie is
	// absent. When false, an absent cookie passes through with no session
	// attached.
	Required bool
	// ValidateAccount cross-checks that the already-validated account
	// identifier is a member of the session's account set, failing with
	// 403 PERMISSION_DENIED if not. This prevents a valid token for
	// account A from being used alongside a session cookie that never
	// authenticated account A.
	ValidateAccount bool
}

// LoadSession resolves the session cookie via the backend and attaches the
// session view to the RequestContext.
func (s *SDK) LoadSession(opts SessionOptions) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := LoggerFromContext(r.Context())

			rc := FromRequest(r)
			if rc == nil {
				apierror.Write(w, logger, apierror.New(apierror.KindServerError,
					"internal server error"))
				return
			}

			cookie := cookieValue(r, s.sessionCookie)
			if cookie == "" {
				if opts.Required {
					s.observe(stageSession, outcomeFail)
					apierror.Write(w, logger, apierror.New(apierror.KindAuthFailed,
						"session cookie missing"))
					return
				}
				s.observe(stageSession, outcomePass)
				next.ServeHTTP(w, r)
				return
			}

			info, err := s.backend.GetSessionInfo(r.Context(), cookie)
			if err != nil {
				s.observe(stageSession, outcomeFail)
				kind := apierror.KindOf(err)
				s.observeBackendError(string(kind))
				logger.Error("session resolution failed", "error", err)
				// The backend's classification carries through: a stale or
				// unknown cookie is an authentication failure, an unreachable
				// backend is a 503, anything else is internal.
				switch kind {
				case apierror.KindAuthFailed:
					apierror.Write(w, logger, apierror.Wrap(apierror.KindAuthFailed,
						"session is not valid", err))
				case apierror.KindConnectionError, apierror.KindTimeout:
					apierror.Write(w, logger, apierror.Wrap(apierror.KindServiceUnavailable,
						"authentication backend unavailable", err))
				default:
					apierror.Write(w, logger, apierror.Wrap(apierror.KindServerError,
						"failed to resolve session", err))
				}
				return
			}

			if opts.ValidateAccount && !info.HasAccount(rc.AccountID) {
				s.observe(stageSession, outcomeFail)
				logger.Warn("session does not include target account",
					"account_id", rc.AccountID,
				)
				apierror.Write(w, logger, apierror.New(apierror.KindPermissionDenied,
					"session is not valid for this account"))
				return
			}

			rc.Session = info
			s.observe(stageSession, outcomePass)
			next.ServeHTTP(w, r)
		})
	}
}

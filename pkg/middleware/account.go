package middleware

import (
	"net/http"

	"github.com/account-gate/accountgate/pkg/account"
	"github.com/account-gate/accountgate/pkg/apierror"
)

// ValidateAccountAccess confirms the target account exists and loads its
// record into the RequestContext, with a type-tagged convenience reference
// for the account's type. Backend failures of any kind (network, timeout,
// 5xx) are reported uniformly as SERVER_ERROR; the caller never sees a raw
// transport error from this step.
func (s *SDK) ValidateAccountAccess() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := LoggerFromContext(r.Context())

			rc := FromRequest(r)
			if rc == nil || rc.AccountID == "" {
				// Composer used out of order; AuthenticateSession must
				// run before this step.
				apierror.Write(w, logger, apierror.New(apierror.KindServerError,
					"internal server error"))
				return
			}

			exists, err := s.backend.CheckUserExists(r.Context(), rc.AccountID)
			if err != nil {
				s.observe(stageAccount, outcomeFail)
				s.observeBackendError(string(apierror.KindOf(err)))
				logger.Error("account existence check failed",
					"account_id", rc.AccountID,
					"error", err,
				)
				apierror.Write(w, logger, apierror.Wrap(apierror.KindServerError,
					"failed to validate account", err))
				return
			}
			if !exists {
				s.observe(stageAccount, outcomeFail)
				apierror.Write(w, logger, apierror.New(apierror.KindUserNotFound,
					"account not found"))
				return
			}

			acct, err := s.backend.GetUserByID(r.Context(), rc.AccountID)
			if err != nil {
				s.observe(stageAccount, outcomeFail)
				s.observeBackendError(string(apierror.KindOf(err)))
				logger.Error("account load failed",
					"account_id", rc.AccountID,
					"error", err,
				)
				apierror.Write(w, logger, apierror.Wrap(apierror.KindServerError,
					"failed to load account", err))
				return
			}

			rc.Account = acct
			switch acct.Type {
			case account.TypeOAuth:
				rc.OAuthAccount = acct
			case account.TypeLocal:
				rc.LocalAccount = acct
			}

			s.observe(stageAccount, outcomePass)
			next.ServeHTTP(w, r)
		})
	}
}

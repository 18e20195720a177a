package middleware

import (
	"net/http"

	"github.com/account-gate/accountgate/pkg/account"
	"github.com/account-gate/accountgate/pkg/apierror"
)

// AuthenticateSession validates the shape of the account identifier in the
// configured request parameter: absent fails with MISSING_DATA, malformed
// (not exactly 24 hex characters) with VALIDATION_ERROR. This is a pure
// syntactic check; it never calls the backend.
func (s *SDK) AuthenticateSession() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := LoggerFromContext(r.Context())

			id := s.accountParamValue(r)
			if id == "" {
				s.observe(stageSessionParam, outcomeFail)
				apierror.Write(w, logger, apierror.New(apierror.KindMissingData,
					"missing required parameter: "+s.accountParam))
				return
			}
			if !account.ValidID(id) {
				s.observe(stageSessionParam, outcomeFail)
				apierror.Write(w, logger, apierror.New(apierror.KindValidation,
					s.accountParam+" must be a 24-character hexadecimal string"))
				return
			}

			rc := FromRequest(r)
			if rc == nil {
				// Composer used out of order; Inject must run first.
				apierror.Write(w, logger, apierror.New(apierror.KindServerError,
					"internal server error"))
				return
			}
			rc.AccountID = id

			s.observe(stageSessionParam, outcomePass)
			next.ServeHTTP(w, r)
		})
	}
}

package middleware

import (
	"context"
	"net/http"

	"github.com/account-gate/accountgate/pkg/account"
	"github.com/account-gate/accountgate/pkg/apierror"
)

// Permission is a declarative predicate set evaluated by RequirePermission
// over the loaded account.
type Permission struct {
	// AccountTypes restricts access to the listed account types. Empty
	// allows all types.
	AccountTypes []account.Type
	// RequireVerifiedEmail fails accounts without a verified email.
	RequireVerifiedEmail bool
	// Validator is an optional custom predicate. It receives the request
	// context so it may make backend calls; returning an error yields a
	// 500, returning false a 403.
	Validator func(ctx context.Context, a *account.Account) (bool, error)
}

// RequirePermission is a composable post-condition step: 401 when no
// account was loaded, 403 on any unmet condition.
func (s *SDK) RequirePermission(p Permission) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := LoggerFromContext(r.Context())

			rc := FromRequest(r)
			if rc == nil || rc.Account == nil {
				s.observe(stagePermission, outcomeFail)
				apierror.Write(w, logger, apierror.New(apierror.KindAuthFailed,
					"no authenticated account"))
				return
			}

			if len(p.AccountTypes) > 0 && !containsType(p.AccountTypes, rc.Account.Type) {
				s.observe(stagePermission, outcomeFail)
				apierror.Write(w, logger, apierror.New(apierror.KindPermissionDenied,
					"account type not permitted"))
				return
			}

			if p.RequireVerifiedEmail && !rc.Account.User.EmailVerified {
				s.observe(stagePermission, outcomeFail)
				apierror.Write(w, logger, apierror.New(apierror.KindPermissionDenied,
					"email verification required"))
				return
			}

			if p.Validator != nil {
				ok, err := p.Validator(r.Context(), rc.Account)
				if err != nil {
					s.observe(stagePermission, outcomeFail)
					logger.Error("permission validator failed", "error", err)
					apierror.Write(w, logger, apierror.Wrap(apierror.KindServerError,
						"permission check failed", err))
					return
				}
				if !ok {
					s.observe(stagePermission, outcomeFail)
					apierror.Write(w, logger, apierror.New(apierror.KindPermissionDenied,
						"permission denied"))
					return
				}
			}

			s.observe(stagePermission, outcomePass)
			next.ServeHTTP(w, r)
		})
	}
}

func containsType(types []account.Type, t account.Type) bool {
	for _, allowed := range types {
		if allowed == t {
			return true
		}
	}
	return false
}

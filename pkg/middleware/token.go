package middleware

import (
	"net/http"
	"strings"

	"github.com/account-gate/accountgate/internal/fingerprint"
	"github.com/account-gate/accountgate/pkg/account"
	"github.com/account-gate/accountgate/pkg/apierror"
)

// ValidateTokenAccess extracts the access and refresh tokens from the
// request, verifies each one that is present, and enforces the ownership
// invariants: the verified token's account id must equal the target account
// and its account type must equal the loaded account's type. Either
// violation is treated identically to an invalid token, which prevents
// token substitution across accounts or across oauth/local boundaries.
//
// At least one token is mandatory. Both tokens, when present, are verified
// independently; the access token is verified first, so its failure wins
// when both would fail. Verification failures route through the shared
// token-error handler (redirect or structured error).
func (s *SDK) ValidateTokenAccess() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := LoggerFromContext(r.Context())

			rc := FromRequest(r)
			if rc == nil || rc.Account == nil {
				// Composer used out of order; ValidateAccountAccess must
				// run before this step. Internal-usage invariant, not a
				// caller-facing concern.
				apierror.Write(w, logger, apierror.New(apierror.KindServerError,
					"internal server error"))
				return
			}

			accessToken := s.extractAccessToken(r, rc.AccountID)
			refreshToken := s.extractRefreshToken(r, rc.AccountID)

			if accessToken == "" && refreshToken == "" {
				s.handleTokenError(w, r, rc, apierror.New(apierror.KindTokenInvalid,
					"no access or refresh token provided"))
				return
			}

			if accessToken != "" {
				v, err := s.backend.VerifyToken(r.Context(), accessToken, account.TokenAccess)
				if err == nil {
					err = checkTokenOwnership(rc, v)
				}
				if err != nil {
					logger.Debug("access token rejected",
						"token_fp", fingerprint.Token(accessToken),
						"error", err,
					)
					s.handleTokenError(w, r, rc, err)
					return
				}
				rc.AccessToken = accessToken
				rc.AccessVerification = v
				if rc.Account.Type == account.TypeOAuth && v.Provider != nil {
					rc.Provider = v.Provider
				}
			}

			if refreshToken != "" {
				v, err := s.backend.VerifyToken(r.Context(), refreshToken, account.TokenRefresh)
				if err == nil {
					err = checkTokenOwnership(rc, v)
				}
				if err != nil {
					logger.Debug("refresh token rejected",
						"token_fp", fingerprint.Token(refreshToken),
						"error", err,
					)
					s.handleTokenError(w, r, rc, err)
					return
				}
				rc.RefreshToken = refreshToken
				rc.RefreshVerification = v
				if rc.Account.Type == account.TypeOAuth && v.Provider != nil && rc.Provider == nil {
					rc.Provider = v.Provider
				}
			}

			s.observe(stageToken, outcomePass)
			next.ServeHTTP(w, r)
		})
	}
}

// checkTokenOwnership enforces the two equality invariants on a successful
// verification. Violations are reported as TOKEN_INVALID, deliberately
// indistinguishable from a token that failed verification outright.
func checkTokenOwnership(rc *RequestContext, v *account.TokenVerification) error {
	if !v.Valid {
		return apierror.New(apierror.KindTokenInvalid, "token verification failed")
	}
	if v.AccountID != rc.AccountID {
		return apierror.New(apierror.KindTokenInvalid, "token verification failed")
	}
	if v.AccountType != rc.Account.Type {
		return apierror.New(apierror.KindTokenInvalid, "token verification failed")
	}
	return nil
}

// extractAccessToken checks the Authorization bearer header first, then the
// account-scoped cookie access_token_<accountId>.
func (s *SDK) extractAccessToken(r *http.Request, accountID string) string {
	if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
		return token
	}
	return cookieValue(r, accessCookiePrefix+accountID)
}

// extractRefreshToken checks the x-refresh-token header first, then the
// account-scoped cookie refresh_token_<accountId>.
func (s *SDK) extractRefreshToken(r *http.Request, accountID string) string {
	if token := r.Header.Get(RefreshTokenHeader); token != "" {
		return token
	}
	return cookieValue(r, refreshCookiePrefix+accountID)
}

// bearerToken extracts the token from an Authorization header value.
func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}
	token := value[len(bearer):]
	if token == "" {
		return "", false
	}
	return token, true
}

// cookieValue returns the named cookie's value, or "" if absent.
func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

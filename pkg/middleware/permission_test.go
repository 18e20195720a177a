package middleware

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/account-gate/accountgate/pkg/account"
	"github.com/account-gate/accountgate/pkg/apierror"
)

// permissionChain is a full authenticated pipeline ending in the permission
// step, with token verification stubbed to succeed.
func permissionChain(typ account.Type, p Permission, opts ...Option) (Middleware, *SDK) {
	b := authBackend(typ)
	b.verifyToken = func(ctx context.Context, token string, kind account.TokenKind) (*account.TokenVerification, error) {
		return validVerification(typ), nil
	}
	s := newTestSDK(b, opts...)
	return Chain(s.Authenticate(), s.RequirePermission(p)), s
}

func bearerRequest() *http.Request {
	r := newRequest("/api/v1/profile", testID)
	r.Header.Set("Authorization", "Bearer "+accessToken)
	return r
}

func TestRequirePermissionWithoutAccount(t *testing.T) {
	s := newTestSDK(&mockBackend{})

	rec, h := serve(Chain(s.Inject(), s.RequirePermission(Permission{})), newRequest("/x", testID))

	expectError(t, rec, http.StatusUnauthorized, apierror.KindAuthFailed)
	if h.calls != 0 {
		t.Error("handler must not run")
	}
}

func TestRequirePermissionAccountType(t *testing.T) {
	mw, _ := permissionChain(account.TypeLocal, Permission{
		AccountTypes: []account.Type{account.TypeOAuth},
	})

	rec, h := serve(mw, bearerRequest())

	expectError(t, rec, http.StatusForbidden, apierror.KindPermissionDenied)
	if h.calls != 0 {
		t.Error("handler must not run")
	}
}

func TestRequirePermissionAllowsListedType(t *testing.T) {
	mw, _ := permissionChain(account.TypeLocal, Permission{
		AccountTypes: []account.Type{account.TypeOAuth, account.TypeLocal},
	})

	rec, h := serve(mw, bearerRequest())

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body %q)", rec.Code, rec.Body.String())
	}
	if h.calls != 1 {
		t.Error("handler should run")
	}
}

func TestRequirePermissionVerifiedEmail(t *testing.T) {
	b := authBackend(account.TypeLocal)
	b.getUserByID = func(ctx context.Context, id string) (*account.Account, error) {
		a := testAccount(account.TypeLocal)
		a.User.EmailVerified = false
		return a, nil
	}
	b.verifyToken = func(ctx context.Context, token string, kind account.TokenKind) (*account.TokenVerification, error) {
		return validVerification(account.TypeLocal), nil
	}
	s := newTestSDK(b)

	rec, _ := serve(Chain(s.Authenticate(),
		s.RequirePermission(Permission{RequireVerifiedEmail: true})), bearerRequest())

	expectError(t, rec, http.StatusForbidden, apierror.KindPermissionDenied)
}

func TestRequirePermissionCustomValidator(t *testing.T) {
	tests := []struct {
		name       string
		validator  func(ctx context.Context, a *account.Account) (bool, error)
		wantStatus int
		wantCode   apierror.Kind
	}{
		{
			name:       "denies",
			validator:  func(ctx context.Context, a *account.Account) (bool, error) { return false, nil },
			wantStatus: http.StatusForbidden,
			wantCode:   apierror.KindPermissionDenied,
		},
		{
			name:       "fails",
			validator:  func(ctx context.Context, a *account.Account) (bool, error) { return false, errors.New("boom") },
			wantStatus: http.StatusInternalServerError,
			wantCode:   apierror.KindServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mw, _ := permissionChain(account.TypeLocal, Permission{Validator: tt.validator})
			rec, h := serve(mw, bearerRequest())

			expectError(t, rec, tt.wantStatus, tt.wantCode)
			if h.calls != 0 {
				t.Error("handler must not run")
			}
		})
	}
}

func TestRequirePermissionValidatorSeesLoadedAccount(t *testing.T) {
	var seen *account.Account
	mw, _ := permissionChain(account.TypeOAuth, Permission{
		Validator: func(ctx context.Context, a *account.Account) (bool, error) {
			seen = a
			return true, nil
		},
	})

	rec, _ := serve(mw, bearerRequest())

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body %q)", rec.Code, rec.Body.String())
	}
	if seen == nil || seen.ID != testID || seen.Type != account.TypeOAuth {
		t.Errorf("validator saw %+v", seen)
	}
}

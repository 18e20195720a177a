package middleware

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/account-gate/accountgate/pkg/account"
	"github.com/account-gate/accountgate/pkg/apierror"
)

func TestLoadSessionRequiredMissingCookie(t *testing.T) {
	s := newTestSDK(&mockBackend{})

	rec, h := serve(Chain(s.Inject(), s.LoadSession(SessionOptions{Required: true})),
		newRequest("/x", testID))

	expectError(t, rec, http.StatusUnauthorized, apierror.KindAuthFailed)
	if h.calls != 0 {
		t.Error("handler must not run")
	}
}

func TestLoadSessionOptionalMissingCookie(t *testing.T) {
	s := newTestSDK(&mockBackend{})

	rec, h := serve(Chain(s.Inject(), s.LoadSession(SessionOptions{})), newRequest("/x", testID))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body %q)", rec.Code, rec.Body.String())
	}
	if h.calls != 1 {
		t.Fatal("handler should run with no session attached")
	}
	if h.last.Session != nil {
		t.Error("no session should be attached")
	}
}

func TestLoadSessionResolutionFailure(t *testing.T) {
	// The backend's classification must survive: stale cookies are an
	// authentication failure, transport failures are 503, the rest 500.
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   apierror.Kind
	}{
		{
			name:       "unknown cookie",
			err:        apierror.New(apierror.KindAuthFailed, "session not found"),
			wantStatus: http.StatusUnauthorized,
			wantKind:   apierror.KindAuthFailed,
		},
		{
			name:       "backend unreachable",
			err:        apierror.New(apierror.KindConnectionError, "backend down"),
			wantStatus: http.StatusServiceUnavailable,
			wantKind:   apierror.KindServiceUnavailable,
		},
		{
			name:       "backend timeout",
			err:        apierror.New(apierror.KindTimeout, "backend slow"),
			wantStatus: http.StatusServiceUnavailable,
			wantKind:   apierror.KindServiceUnavailable,
		},
		{
			name:       "untyped failure",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantKind:   apierror.KindServerError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &mockBackend{
				sessionInfo: func(ctx context.Context, cookie string) (*account.SessionInfo, error) {
					return nil, tt.err
				},
			}
			s := newTestSDK(b)

			r := newRequest("/x", testID)
			r.AddCookie(&http.Cookie{Name: DefaultSessionCookie, Value: testCookie})
			rec, h := serve(Chain(s.Inject(), s.LoadSession(SessionOptions{Required: true})), r)

			expectError(t, rec, tt.wantStatus, tt.wantKind)
			if h.calls != 0 {
				t.Error("handler must not run")
			}
		})
	}
}

func TestLoadSessionValidateAccountMismatch(t *testing.T) {
	b := &mockBackend{
		sessionInfo: func(ctx context.Context, cookie string) (*account.SessionInfo, error) {
			return &account.SessionInfo{AccountIDs: []string{otherID}}, nil
		},
	}
	s := newTestSDK(b)

	r := newRequest("/x", testID)
	r.AddCookie(&http.Cookie{Name: DefaultSessionCookie, Value: testCookie})
	rec, h := serve(Chain(s.Inject(), s.AuthenticateSession(),
		s.LoadSession(SessionOptions{Required: true, ValidateAccount: true})), r)

	expectError(t, rec, http.StatusForbidden, apierror.KindPermissionDenied)
	if h.calls != 0 {
		t.Error("handler must not run")
	}
}

func TestLoadSessionAttachesSession(t *testing.T) {
	info := &account.SessionInfo{AccountIDs: []string{testID}, ActiveAccountID: testID}
	var gotCookie string
	b := &mockBackend{
		sessionInfo: func(ctx context.Context, cookie string) (*account.SessionInfo, error) {
			gotCookie = cookie
			return info, nil
		},
	}
	s := newTestSDK(b)

	r := newRequest("/x", testID)
	r.AddCookie(&http.Cookie{Name: DefaultSessionCookie, Value: testCookie})
	rec, h := serve(Chain(s.Inject(), s.AuthenticateSession(),
		s.LoadSession(SessionOptions{Required: true, ValidateAccount: true})), r)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body %q)", rec.Code, rec.Body.String())
	}
	if gotCookie != testCookie {
		t.Errorf("resolved cookie = %q", gotCookie)
	}
	if h.last.Session != info {
		t.Error("session view should be attached")
	}
}

func TestLoadSessionCustomCookieName(t *testing.T) {
	b := &mockBackend{
		sessionInfo: func(ctx context.Context, cookie string) (*account.SessionInfo, error) {
			return &account.SessionInfo{AccountIDs: []string{testID}}, nil
		},
	}
	s := newTestSDK(b, WithSessionCookie("custom_session"))

	r := newRequest("/x", testID)
	r.AddCookie(&http.Cookie{Name: "custom_session", Value: testCookie})
	rec, _ := serve(Chain(s.Inject(), s.LoadSession(SessionOptions{Required: true})), r)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body %q)", rec.Code, rec.Body.String())
	}
}

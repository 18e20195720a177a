package middleware

import (
	"net/http"
	"testing"

	"github.com/account-gate/accountgate/pkg/apierror"
)

func TestAuthenticateSessionMissingParam(t *testing.T) {
	s := newTestSDK(&mockBackend{})

	rec, h := serve(Chain(s.Inject(), s.AuthenticateSession()), newRequest("/x", ""))

	expectError(t, rec, http.StatusBadRequest, apierror.KindMissingData)
	if h.calls != 0 {
		t.Error("handler must not run")
	}
}

func TestAuthenticateSessionMalformedParam(t *testing.T) {
	s := newTestSDK(&mockBackend{})

	tests := []struct {
		name string
		id   string
	}{
		{"too short", "507f1f77bcf86cd7994390"},
		{"too long", "507f1f77bcf86cd7994390111"},
		{"non-hex", "507f1f77bcf86cd79943901z"},
		{"0x prefixed", "0x7f1f77bcf86cd79943901a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, h := serve(Chain(s.Inject(), s.AuthenticateSession()), newRequest("/x", tt.id))
			expectError(t, rec, http.StatusBadRequest, apierror.KindValidation)
			if h.calls != 0 {
				t.Error("handler must not run")
			}
		})
	}
}

func TestAuthenticateSessionValid(t *testing.T) {
	s := newTestSDK(&mockBackend{})

	rec, h := serve(Chain(s.Inject(), s.AuthenticateSession()), newRequest("/x", testID))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body %q)", rec.Code, rec.Body.String())
	}
	if h.calls != 1 {
		t.Fatalf("handler calls = %d, want 1", h.calls)
	}
	if h.last.AccountID != testID {
		t.Errorf("AccountID = %q", h.last.AccountID)
	}
}

func TestAuthenticateSessionWithoutInject(t *testing.T) {
	s := newTestSDK(&mockBackend{})

	// Composer misuse: the step runs without the Inject step before it.
	rec, h := serve(s.AuthenticateSession(), newRequest("/x", testID))

	expectError(t, rec, http.StatusInternalServerError, apierror.KindServerError)
	if h.calls != 0 {
		t.Error("handler must not run")
	}
}

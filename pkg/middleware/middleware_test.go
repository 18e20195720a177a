package middleware

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/account-gate/accountgate/pkg/account"
	"github.com/account-gate/accountgate/pkg/apierror"
)

const (
	testID      = "507f1f77bcf86cd799439011"
	otherID     = "aaaaaaaaaaaaaaaaaaaaaaaa"
	testCookie  = "sess-cookie-value"
	accessToken = "access-token-raw"
)

// mockBackend implements backend.Backend with per-call hooks. Unset hooks
// fail the call so a test never silently exercises an unexpected operation.
type mockBackend struct {
	verifyToken  func(ctx context.Context, token string, kind account.TokenKind) (*account.TokenVerification, error)
	getUserByID  func(ctx context.Context, accountID string) (*account.Account, error)
	checkExists  func(ctx context.Context, accountID string) (bool, error)
	sessionInfo  func(ctx context.Context, cookie string) (*account.SessionInfo, error)
	validateSess func(ctx context.Context, accountID, cookie string) (bool, error)
}

func (m *mockBackend) VerifyToken(ctx context.Context, token string, kind account.TokenKind) (*account.TokenVerification, error) {
	if m.verifyToken == nil {
		return nil, apierror.New(apierror.KindServerError, "unexpected VerifyToken call")
	}
	return m.verifyToken(ctx, token, kind)
}

func (m *mockBackend) GetUserByID(ctx context.Context, accountID string) (*account.Account, error) {
	if m.getUserByID == nil {
		return nil, apierror.New(apierror.KindServerError, "unexpected GetUserByID call")
	}
	return m.getUserByID(ctx, accountID)
}

func (m *mockBackend) CheckUserExists(ctx context.Context, accountID string) (bool, error) {
	if m.checkExists == nil {
		return false, apierror.New(apierror.KindServerError, "unexpected CheckUserExists call")
	}
	return m.checkExists(ctx, accountID)
}

func (m *mockBackend) GetSessionInfo(ctx context.Context, cookie string) (*account.SessionInfo, error) {
	if m.sessionInfo == nil {
		return nil, apierror.New(apierror.KindServerError, "unexpected GetSessionInfo call")
	}
	return m.sessionInfo(ctx, cookie)
}

func (m *mockBackend) ValidateSession(ctx context.Context, accountID, cookie string) (bool, error) {
	if m.validateSess == nil {
		return false, apierror.New(apierror.KindServerError, "unexpected ValidateSession call")
	}
	return m.validateSess(ctx, accountID, cookie)
}

// quietLogger keeps test output clean.
func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSDK(b *mockBackend, opts ...Option) *SDK {
	return New(b, append([]Option{WithLogger(quietLogger())}, opts...)...)
}

func testAccount(typ account.Type) *account.Account {
	return &account.Account{
		ID:     testID,
		Type:   typ,
		Status: account.StatusActive,
		User: account.UserDetails{
			Name:          "Ada",
			Email:         "ada@example.com",
			EmailVerified: true,
		},
	}
}

func validVerification(typ account.Type) *account.TokenVerification {
	return &account.TokenVerification{
		Valid:       true,
		AccountID:   testID,
		AccountType: typ,
	}
}

// newRequest builds a GET request with the account id bound as a route path
// value, the way both chi and net/http route patterns deliver it.
func newRequest(path, accountID string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, path, nil)
	if accountID != "" {
		r.SetPathValue(DefaultAccountParam, accountID)
	}
	return r
}

// countingHandler records whether and how often the terminal handler ran.
type countingHandler struct {
	calls int
	last  *RequestContext
}

func (h *countingHandler) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.calls++
		h.last = FromRequest(r)
		w.WriteHeader(http.StatusOK)
	})
}

// serve runs a middleware chain around a counting handler.
func serve(mw Middleware, r *http.Request) (*httptest.ResponseRecorder, *countingHandler) {
	h := &countingHandler{}
	rec := httptest.NewRecorder()
	mw(h.handler()).ServeHTTP(rec, r)
	return rec, h
}

// decodeErrorBody parses the structured error envelope from a response.
func decodeErrorBody(t *testing.T, rec *httptest.ResponseRecorder) apierror.ErrorBody {
	t.Helper()
	var body apierror.ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode error body %q: %v", rec.Body.String(), err)
	}
	return body
}

// expectError asserts status code and wire error code.
func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, code apierror.Kind) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d (body %q)", rec.Code, status, rec.Body.String())
	}
	body := decodeErrorBody(t, rec)
	if body.Success {
		t.Error("success should be false in error envelope")
	}
	if body.Error.Code != code {
		t.Errorf("code = %q, want %q", body.Error.Code, code)
	}
}

func TestInjectAttachesRequestContextAndID(t *testing.T) {
	s := newTestSDK(&mockBackend{})

	var gotRC *RequestContext
	var gotID string
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRC = FromRequest(r)
		gotID = RequestIDFromContext(r.Context())
	})

	rec := httptest.NewRecorder()
	s.Inject()(h).ServeHTTP(rec, newRequest("/x", ""))

	if gotRC == nil {
		t.Fatal("request context not attached")
	}
	if gotID == "" {
		t.Error("request id not attached")
	}
	if rec.Header().Get("X-Request-ID") != gotID {
		t.Error("request id should echo in the response header")
	}
}

func TestInjectHonorsIncomingRequestID(t *testing.T) {
	s := newTestSDK(&mockBackend{})

	r := newRequest("/x", "")
	r.Header.Set("X-Request-ID", "req-123")

	var gotID string
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = RequestIDFromContext(r.Context())
	})
	s.Inject()(h).ServeHTTP(httptest.NewRecorder(), r)

	if gotID != "req-123" {
		t.Errorf("request id = %q, want the caller-provided one", gotID)
	}
}

func TestAccountParamValueSources(t *testing.T) {
	s := newTestSDK(&mockBackend{})

	fromPath := newRequest("/x", testID)
	if got := s.accountParamValue(fromPath); got != testID {
		t.Errorf("path value = %q", got)
	}

	fromQuery := httptest.NewRequest(http.MethodGet, "/x?accountId="+testID, nil)
	if got := s.accountParamValue(fromQuery); got != testID {
		t.Errorf("query value = %q", got)
	}

	custom := New(&mockBackend{}, WithAccountParam("userId"), WithLogger(quietLogger()))
	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	r.SetPathValue("userId", testID)
	if got := custom.accountParamValue(r); got != testID {
		t.Errorf("custom param value = %q", got)
	}
}

func TestLoggerFromContextFallsBack(t *testing.T) {
	if LoggerFromContext(context.Background()) == nil {
		t.Error("should fall back to the default logger")
	}
}

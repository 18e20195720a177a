package backendtest

import (
	"context"
	"testing"
	"time"

	"github.com/account-gate/accountgate/pkg/account"
	"github.com/account-gate/accountgate/pkg/apierror"
	"github.com/account-gate/accountgate/pkg/backend"
)

const testID = "507f1f77bcf86cd799439011"

func newServer(t *testing.T) (*Server, *backend.HTTPClient) {
	t.Helper()
	srv := New()
	t.Cleanup(srv.Close)
	srv.AddAccount(&account.Account{
		ID:     testID,
		Type:   account.TypeOAuth,
		Status: account.StatusActive,
		User:   account.UserDetails{Email: "ada@example.com", EmailVerified: true},
	})
	return srv, backend.NewHTTPClient(srv.URL())
}

func TestAccessTokenLifecycle(t *testing.T) {
	srv, c := newServer(t)

	token := srv.IssueAccessToken(testID, account.TypeOAuth, time.Minute)
	v, err := c.VerifyToken(context.Background(), token, account.TokenAccess)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if !v.Valid || v.AccountID != testID || v.AccountType != account.TypeOAuth {
		t.Errorf("verification = %+v", v)
	}
	if v.ExpiresAt == nil || !v.ExpiresAt.After(time.Now()) {
		t.Error("expiry should be in the future")
	}

	expired := srv.IssueAccessToken(testID, account.TypeOAuth, -time.Minute)
	_, err = c.VerifyToken(context.Background(), expired, account.TokenAccess)
	if kind := apierror.KindOf(err); kind != apierror.KindTokenExpired {
		t.Errorf("kind = %q, want TOKEN_EXPIRED", kind)
	}

	_, err = c.VerifyToken(context.Background(), "garbage", account.TokenAccess)
	if kind := apierror.KindOf(err); kind != apierror.KindTokenInvalid {
		t.Errorf("kind = %q, want TOKEN_INVALID", kind)
	}
}

func TestRefreshTokenLifecycle(t *testing.T) {
	srv, c := newServer(t)

	token := srv.IssueRefreshToken(testID, account.TypeOAuth, time.Minute)
	v, err := c.VerifyToken(context.Background(), token, account.TokenRefresh)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if !v.Valid || v.AccountID != testID {
		t.Errorf("verification = %+v", v)
	}

	expired := srv.IssueRefreshToken(testID, account.TypeOAuth, -time.Minute)
	_, err = c.VerifyToken(context.Background(), expired, account.TokenRefresh)
	if kind := apierror.KindOf(err); kind != apierror.KindTokenExpired {
		t.Errorf("kind = %q, want TOKEN_EXPIRED", kind)
	}

	_, err = c.VerifyToken(context.Background(), "unknown-refresh", account.TokenRefresh)
	if kind := apierror.KindOf(err); kind != apierror.KindTokenInvalid {
		t.Errorf("kind = %q, want TOKEN_INVALID", kind)
	}
}

func TestProviderTokenEmbedding(t *testing.T) {
	srv, c := newServer(t)
	srv.SetProviderToken(testID, &account.ProviderToken{AccessToken: "provider-access"})

	token := srv.IssueAccessToken(testID, account.TypeOAuth, time.Minute)
	v, err := c.VerifyToken(context.Background(), token, account.TokenAccess)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if v.Provider == nil || v.Provider.AccessToken != "provider-access" {
		t.Errorf("provider = %+v", v.Provider)
	}
}

func TestUserEndpoints(t *testing.T) {
	_, c := newServer(t)

	acct, err := c.GetUserByID(context.Background(), testID)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if acct.User.Email != "ada@example.com" {
		t.Errorf("account = %+v", acct)
	}

	_, err = c.GetUserByID(context.Background(), "aaaaaaaaaaaaaaaaaaaaaaaa")
	if kind := apierror.KindOf(err); kind != apierror.KindUserNotFound {
		t.Errorf("kind = %q, want USER_NOT_FOUND", kind)
	}

	exists, err := c.CheckUserExists(context.Background(), testID)
	if err != nil || !exists {
		t.Errorf("exists = %v, err = %v", exists, err)
	}
}

func TestSessionEndpoints(t *testing.T) {
	srv, c := newServer(t)
	srv.AddSession("cookie-1", &account.SessionInfo{
		AccountIDs:      []string{testID},
		ActiveAccountID: testID,
	})

	info, err := c.GetSessionInfo(context.Background(), "cookie-1")
	if err != nil {
		t.Fatalf("GetSessionInfo: %v", err)
	}
	if !info.HasAccount(testID) {
		t.Errorf("session = %+v", info)
	}

	_, err = c.GetSessionInfo(context.Background(), "unknown-cookie")
	if kind := apierror.KindOf(err); kind != apierror.KindAuthFailed {
		t.Errorf("kind = %q, want AUTH_FAILED", kind)
	}

	valid, err := c.ValidateSession(context.Background(), testID, "cookie-1")
	if err != nil || !valid {
		t.Errorf("valid = %v, err = %v", valid, err)
	}
	valid, err = c.ValidateSession(context.Background(), "aaaaaaaaaaaaaaaaaaaaaaaa", "cookie-1")
	if err != nil || valid {
		t.Errorf("valid = %v, err = %v for non-member account", valid, err)
	}
}

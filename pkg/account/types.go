// Package account contains the identity, token, and session types exchanged
// with the account backend. All values are request-scoped: the SDK loads them
// fresh per request and never caches them across requests.
package account

import "time"

// Type distinguishes oauth-provider accounts from local credential accounts.
type Type string

const (
	// TypeOAuth is an account backed by an external oauth provider.
	TypeOAuth Type = "oauth"
	// TypeLocal is an account with locally managed credentials.
	TypeLocal Type = "local"
)

// IsValid returns true if the type is a known account type.
func (t Type) IsValid() bool {
	return t == TypeOAuth || t == TypeLocal
}

// Status is the lifecycle state of an account.
type Status string

const (
	StatusActive     Status = "active"
	StatusInactive   Status = "inactive"
	StatusUnverified Status = "unverified"
	StatusSuspended  Status = "suspended"
)

// UserDetails holds the profile fields nested inside an account record.
type UserDetails struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"emailVerified"`
}

// SecuritySettings holds the per-account security configuration.
type SecuritySettings struct {
	TwoFactorEnabled bool `json:"twoFactorEnabled"`
	// SessionTimeoutSeconds is the backend-configured idle timeout.
	SessionTimeoutSeconds int  `json:"sessionTimeout"`
	AutoLock              bool `json:"autoLock"`
}

// Account is the identity record loaded from the backend. It is immutable
// for the duration of one request.
type Account struct {
	// ID is the opaque 24-hex-character account identifier.
	ID       string           `json:"id"`
	Type     Type             `json:"accountType"`
	Status   Status           `json:"status"`
	User     UserDetails      `json:"userDetails"`
	Security SecuritySettings `json:"securitySettings"`
}

// TokenKind is the credential kind submitted for verification.
type TokenKind string

const (
	// TokenAccess is a short-lived access token.
	TokenAccess TokenKind = "access"
	// TokenRefresh is a long-lived refresh token.
	TokenRefresh TokenKind = "refresh"
)

// ProviderToken is the oauth provider credential embedded in verified tokens
// of oauth accounts.
type ProviderToken struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// TokenVerification is the backend's answer to a verify-token call. A token
// is only usable if Valid is true AND AccountID equals the request's target
// account AND AccountType equals the loaded account's type. The equality
// checks are enforced by the middleware, not here.
type TokenVerification struct {
	Valid       bool           `json:"valid"`
	AccountID   string         `json:"accountId"`
	AccountType Type           `json:"accountType"`
	ExpiresAt   *time.Time     `json:"expiresAt,omitempty"`
	Provider    *ProviderToken `json:"providerToken,omitempty"`
}

// SessionInfo is the read-only view of a browser session, keyed by the
// opaque session cookie.
type SessionInfo struct {
	// AccountIDs is the set of accounts this session has authenticated.
	AccountIDs []string `json:"accountIds"`
	// ActiveAccountID is the currently active account, if any.
	ActiveAccountID string `json:"activeAccountId,omitempty"`
}

// HasAccount returns true if the session has authenticated the given
// account identifier.
func (s *SessionInfo) HasAccount(id string) bool {
	for _, a := range s.AccountIDs {
		if a == id {
			return true
		}
	}
	return false
}

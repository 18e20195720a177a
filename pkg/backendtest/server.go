// Package backendtest provides an in-memory fake of the account backend's
// internal API, served over both HTTP and the realtime socket. It exists for
// tests: seed accounts and sessions, issue tokens, and point the SDK's
// transport clients at Server.URL / Server.SocketURL.
package backendtest

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/golang-jwt/jwt/v5"

	"github.com/account-gate/accountgate/pkg/account"
	"github.com/account-gate/accountgate/pkg/apierror"
	"github.com/account-gate/accountgate/pkg/backend"
)

// refreshRecord is a stored refresh token. Only the argon2id hash is kept,
// the way a real backend stores long-lived credentials.
type refreshRecord struct {
	accountID string
	accType   account.Type
	hash      string
	expiresAt time.Time
}

// Server is the fake account backend.
type Server struct {
	mu        sync.RWMutex
	accounts  map[string]*account.Account
	sessions  map[string]*account.SessionInfo
	refresh   []refreshRecord
	providers map[string]*account.ProviderToken
	conns     map[*connWrapper]struct{}

	jwtSecret []byte
	srv       *httptest.Server
	logger    *slog.Logger
}

// New starts a fake backend on a random local port.
func New() *Server {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		panic("backendtest: failed to generate jwt secret: " + err.Error())
	}

	s := &Server{
		accounts:  make(map[string]*account.Account),
		sessions:  make(map[string]*account.SessionInfo),
		providers: make(map[string]*account.ProviderToken),
		conns:     make(map[*connWrapper]struct{}),
		jwtSecret: secret,
		logger:    slog.Default(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /internal/auth/verify-token", s.handleVerifyToken)
	mux.HandleFunc("GET /internal/users/{id}", s.handleGetUser)
	mux.HandleFunc("GET /internal/users/{id}/exists", s.handleUserExists)
	mux.HandleFunc("POST /internal/session/info", s.handleSessionInfo)
	mux.HandleFunc("POST /internal/session/validate", s.handleSessionValidate)
	mux.HandleFunc("/internal/socket", s.handleSocket)

	s.srv = httptest.NewServer(mux)
	return s
}

// URL returns the HTTP base URL of the fake backend.
func (s *Server) URL() string {
	return s.srv.URL
}

// SocketURL returns the websocket endpoint URL.
func (s *Server) SocketURL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/internal/socket"
}

// Close shuts the fake backend down, dropping any live socket connections.
func (s *Server) Close() {
	s.DropSocketConnections()
	s.srv.Close()
}

// AddAccount seeds an account record.
func (s *Server) AddAccount(a *account.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.ID] = a
}

// SetProviderToken seeds the oauth provider credential embedded in verified
// tokens of the given account.
func (s *Server) SetProviderToken(accountID string, pt *account.ProviderToken) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers[accountID] = pt
}

// AddSession seeds a session view under the given cookie value.
func (s *Server) AddSession(cookie string, info *account.SessionInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[cookie] = info
}

// IssueAccessToken issues a signed access token for the account, bound to
// the given account type, expiring after ttl. A negative ttl produces an
// already-expired token.
func (s *Server) IssueAccessToken(accountID string, accType account.Type, ttl time.Duration) string {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": accountID,
		"typ": string(accType),
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		panic("backendtest: failed to sign token: " + err.Error())
	}
	return signed
}

// IssueRefreshToken issues an opaque refresh token for the account. The
// server stores only its argon2id hash.
func (s *Server) IssueRefreshToken(accountID string, accType account.Type, ttl time.Duration) string {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		panic("backendtest: failed to generate refresh token: " + err.Error())
	}
	tokenStr := hex.EncodeToString(raw)

	hash, err := argon2id.CreateHash(tokenStr, argon2id.DefaultParams)
	if err != nil {
		panic("backendtest: failed to hash refresh token: " + err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh = append(s.refresh, refreshRecord{
		accountID: accountID,
		accType:   accType,
		hash:      hash,
		expiresAt: time.Now().Add(ttl),
	})
	return tokenStr
}

// --- operation logic, shared by both transports ---

// verifyToken implements the verify-token operation.
func (s *Server) verifyToken(token string, kind account.TokenKind) (*account.TokenVerification, *backend.WireError) {
	switch kind {
	case account.TokenAccess:
		return s.verifyAccessToken(token)
	case account.TokenRefresh:
		return s.verifyRefreshToken(token)
	default:
		return nil, &backend.WireError{
			Code:    string(apierror.KindValidation),
			Message: "unknown token type",
		}
	}
}

func (s *Server) verifyAccessToken(token string) (*account.TokenVerification, *backend.WireError) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		code := apierror.KindTokenInvalid
		if errors.Is(err, jwt.ErrTokenExpired) {
			code = apierror.KindTokenExpired
		}
		return nil, &backend.WireError{Code: string(code), Message: "access token rejected"}
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, &backend.WireError{Code: string(apierror.KindTokenInvalid), Message: "access token rejected"}
	}
	sub, _ := claims["sub"].(string)
	typ, _ := claims["typ"].(string)
	exp, _ := claims.GetExpirationTime()

	v := &account.TokenVerification{
		Valid:       true,
		AccountID:   sub,
		AccountType: account.Type(typ),
	}
	if exp != nil {
		t := exp.Time
		v.ExpiresAt = &t
	}
	s.attachProvider(v)
	return v, nil
}

func (s *Server) verifyRefreshToken(token string) (*account.TokenVerification, *backend.WireError) {
	s.mu.RLock()
	records := make([]refreshRecord, len(s.refresh))
	copy(records, s.refresh)
	s.mu.RUnlock()

	// Hashes are salted, so lookup is by iteration, same as a backend
	// storing argon2id-hashed credentials.
	for _, rec := range records {
		match, err := argon2id.ComparePasswordAndHash(token, rec.hash)
		if err != nil || !match {
			continue
		}
		if time.Now().After(rec.expiresAt) {
			return nil, &backend.WireError{
				Code:    string(apierror.KindTokenExpired),
				Message: "refresh token expired",
			}
		}
		v := &account.TokenVerification{
			Valid:       true,
			AccountID:   rec.accountID,
			AccountType: rec.accType,
			ExpiresAt:   &rec.expiresAt,
		}
		s.attachProvider(v)
		return v, nil
	}
	return nil, &backend.WireError{
		Code:    string(apierror.KindTokenInvalid),
		Message: "refresh token rejected",
	}
}

// attachProvider embeds the provider credential for oauth accounts.
func (s *Server) attachProvider(v *account.TokenVerification) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[v.AccountID]
	if !ok || acct.Type != account.TypeOAuth {
		return
	}
	if pt, ok := s.providers[v.AccountID]; ok {
		v.Provider = pt
	}
}

func (s *Server) getUser(id string) (*account.Account, *backend.WireError) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[id]
	if !ok {
		return nil, &backend.WireError{
			Code:    string(apierror.KindUserNotFound),
			Message: "account not found",
		}
	}
	return acct, nil
}

func (s *Server) userExists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.accounts[id]
	return ok
}

func (s *Server) sessionInfo(cookie string) (*account.SessionInfo, *backend.WireError) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.sessions[cookie]
	if !ok {
		return nil, &backend.WireError{
			Code:    string(apierror.KindAuthFailed),
			Message: "unknown session",
		}
	}
	return info, nil
}

// --- HTTP transport ---

func (s *Server) handleVerifyToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token     string `json:"token"`
		TokenType string `json:"tokenType"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, &backend.WireError{
			Code:    string(apierror.KindValidation),
			Message: "malformed request body",
		})
		return
	}
	v, wireErr := s.verifyToken(req.Token, account.TokenKind(req.TokenType))
	if wireErr != nil {
		s.writeError(w, wireErr)
		return
	}
	s.writeData(w, v)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	acct, wireErr := s.getUser(r.PathValue("id"))
	if wireErr != nil {
		s.writeError(w, wireErr)
		return
	}
	s.writeData(w, acct)
}

func (s *Server) handleUserExists(w http.ResponseWriter, r *http.Request) {
	s.writeData(w, map[string]bool{"exists": s.userExists(r.PathValue("id"))})
}

func (s *Server) handleSessionInfo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionCookie string `json:"sessionCookie"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, &backend.WireError{
			Code:    string(apierror.KindValidation),
			Message: "malformed request body",
		})
		return
	}
	info, wireErr := s.sessionInfo(req.SessionCookie)
	if wireErr != nil {
		s.writeError(w, wireErr)
		return
	}
	s.writeData(w, info)
}

func (s *Server) handleSessionValidate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID     string `json:"accountId"`
		SessionCookie string `json:"sessionCookie"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, &backend.WireError{
			Code:    string(apierror.KindValidation),
			Message: "malformed request body",
		})
		return
	}
	info, wireErr := s.sessionInfo(req.SessionCookie)
	if wireErr != nil {
		s.writeError(w, wireErr)
		return
	}
	s.writeData(w, map[string]bool{"valid": info.HasAccount(req.AccountID)})
}

func (s *Server) writeData(w http.ResponseWriter, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		s.writeError(w, &backend.WireError{
			Code:    string(apierror.KindServerError),
			Message: "failed to marshal response",
		})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(backend.Envelope{Success: true, Data: raw})
}

func (s *Server) writeError(w http.ResponseWriter, wireErr *backend.WireError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apierror.Kind(wireErr.Code).HTTPStatus())
	_ = json.NewEncoder(w).Encode(backend.Envelope{Success: false, Error: wireErr})
}

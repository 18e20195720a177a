// Package backend provides the transport clients for the account backend's
// internal API. Both the HTTP client and the realtime-socket client expose
// the same Backend surface and return the same normalized envelopes, so the
// middleware never branches on transport-specific control flow. The Selector
// composes the two with per-call transport selection and socket-to-HTTP
// fallback.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/account-gate/accountgate/pkg/account"
	"github.com/account-gate/accountgate/pkg/apierror"
)

// Backend is the uniform surface over the account backend's internal API.
// Implementations: HTTPClient, SocketClient, Selector.
type Backend interface {
	// VerifyToken verifies a token of the given kind and returns the
	// verification result. Verification failures (expired, invalid) are
	// returned as errors carrying the corresponding apierror kind.
	VerifyToken(ctx context.Context, token string, kind account.TokenKind) (*account.TokenVerification, error)

	// GetUserByID loads the full account record.
	GetUserByID(ctx context.Context, accountID string) (*account.Account, error)

	// CheckUserExists reports whether the account exists.
	CheckUserExists(ctx context.Context, accountID string) (bool, error)

	// GetSessionInfo resolves a session cookie to its session view.
	GetSessionInfo(ctx context.Context, sessionCookie string) (*account.SessionInfo, error)

	// ValidateSession reports whether the session has authenticated the
	// given account.
	ValidateSession(ctx context.Context, accountID, sessionCookie string) (bool, error)
}

// Envelope is the normalized success/error wrapper used by every internal
// API response, over both transports.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *WireError      `json:"error,omitempty"`
}

// WireError is the error payload inside a failed envelope.
type WireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// decodeEnvelope converts an envelope into the target data value or into a
// typed error. Backend-reported errors keep their wire code as the error
// kind so verification failures (TOKEN_EXPIRED, TOKEN_INVALID) survive the
// transport boundary intact.
func decodeEnvelope(env *Envelope, target any) error {
	if !env.Success {
		code := apierror.KindServerError
		message := "backend reported failure"
		if env.Error != nil {
			if env.Error.Code != "" {
				code = apierror.Kind(env.Error.Code)
			}
			if env.Error.Message != "" {
				message = env.Error.Message
			}
		}
		return apierror.New(code, message)
	}
	if target == nil {
		return nil
	}
	if len(env.Data) == 0 {
		return apierror.New(apierror.KindServerError, "backend envelope missing data")
	}
	if err := json.Unmarshal(env.Data, target); err != nil {
		return apierror.Wrap(apierror.KindServerError, "malformed backend payload", err)
	}
	return nil
}

// classifyTransportError maps a raw transport failure to the taxonomy.
// context deadline and cancellation become TIMEOUT_ERROR; everything else
// (DNS, refused connection, closed socket) becomes CONNECTION_ERROR.
func classifyTransportError(op string, err error) error {
	var apiErr *apierror.Error
	if errors.As(err, &apiErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apierror.Wrap(apierror.KindTimeout, fmt.Sprintf("%s timed out", op), err)
	}
	return apierror.Wrap(apierror.KindConnectionError, fmt.Sprintf("%s failed", op), err)
}

// existsPayload is the data body of the users-exists operation.
type existsPayload struct {
	Exists bool `json:"exists"`
}

// validPayload is the data body of the session-validate operation.
type validPayload struct {
	Valid bool `json:"valid"`
}

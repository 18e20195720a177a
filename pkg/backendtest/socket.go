package backendtest

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/account-gate/accountgate/pkg/account"
	"github.com/account-gate/accountgate/pkg/apierror"
	"github.com/account-gate/accountgate/pkg/backend"
)

// socketFrame is one inbound request frame on the socket transport.
type socketFrame struct {
	ID      string          `json:"id"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// socketAck is one acknowledgement frame, correlated by id.
type socketAck struct {
	ID string `json:"id"`
	backend.Envelope
}

// connWrapper serializes writes on one server-side socket connection.
type connWrapper struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *connWrapper) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The fake backend trusts all test clients.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleSocket upgrades the connection and serves event frames until the
// client disconnects. Each event is acknowledged with the same envelope
// shape as the HTTP API.
func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("socket upgrade failed", "error", err)
		return
	}
	wrapped := &connWrapper{conn: conn}

	s.mu.Lock()
	s.conns[wrapped] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, wrapped)
		s.mu.Unlock()
		conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var frame socketFrame
		if err := json.Unmarshal(msg, &frame); err != nil {
			s.logger.Error("socket frame decode failed", "error", err)
			continue
		}
		ack := socketAck{ID: frame.ID, Envelope: s.dispatch(frame)}
		if err := wrapped.writeJSON(ack); err != nil {
			return
		}
	}
}

// DropSocketConnections forcibly closes every live socket connection. Tests
// use it to simulate a backend-side connection drop.
func (s *Server) DropSocketConnections() {
	s.mu.Lock()
	conns := make([]*connWrapper, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.conns = make(map[*connWrapper]struct{})
	s.mu.Unlock()

	for _, c := range conns {
		c.conn.Close()
	}
}

// dispatch executes one socket event and returns its envelope.
func (s *Server) dispatch(frame socketFrame) backend.Envelope {
	switch frame.Event {
	case "auth:verify-token":
		var p struct {
			Token     string `json:"token"`
			TokenType string `json:"tokenType"`
		}
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			return malformedPayload()
		}
		v, wireErr := s.verifyToken(p.Token, account.TokenKind(p.TokenType))
		if wireErr != nil {
			return errorEnvelope(wireErr)
		}
		return dataEnvelope(v)

	case "users:get-by-id":
		var p struct {
			AccountID string `json:"accountId"`
		}
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			return malformedPayload()
		}
		acct, wireErr := s.getUser(p.AccountID)
		if wireErr != nil {
			return errorEnvelope(wireErr)
		}
		return dataEnvelope(acct)

	case "users:exists":
		var p struct {
			AccountID string `json:"accountId"`
		}
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			return malformedPayload()
		}
		return dataEnvelope(map[string]bool{"exists": s.userExists(p.AccountID)})

	case "session:get-info":
		var p struct {
			SessionCookie string `json:"sessionCookie"`
		}
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			return malformedPayload()
		}
		info, wireErr := s.sessionInfo(p.SessionCookie)
		if wireErr != nil {
			return errorEnvelope(wireErr)
		}
		return dataEnvelope(info)

	case "session:validate":
		var p struct {
			AccountID     string `json:"accountId"`
			SessionCookie string `json:"sessionCookie"`
		}
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			return malformedPayload()
		}
		info, wireErr := s.sessionInfo(p.SessionCookie)
		if wireErr != nil {
			return errorEnvelope(wireErr)
		}
		return dataEnvelope(map[string]bool{"valid": info.HasAccount(p.AccountID)})

	default:
		return errorEnvelope(&backend.WireError{
			Code:    string(apierror.KindValidation),
			Message: "unknown event: " + frame.Event,
		})
	}
}

func dataEnvelope(data any) backend.Envelope {
	raw, err := json.Marshal(data)
	if err != nil {
		return errorEnvelope(&backend.WireError{
			Code:    string(apierror.KindServerError),
			Message: "failed to marshal response",
		})
	}
	return backend.Envelope{Success: true, Data: raw}
}

func errorEnvelope(wireErr *backend.WireError) backend.Envelope {
	return backend.Envelope{Success: false, Error: wireErr}
}

func malformedPayload() backend.Envelope {
	return errorEnvelope(&backend.WireError{
		Code:    string(apierror.KindValidation),
		Message: "malformed event payload",
	})
}

package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/account-gate/accountgate/internal/fingerprint"
	"github.com/account-gate/accountgate/pkg/account"
	"github.com/account-gate/accountgate/pkg/apierror"
)

// Socket event names for the internal API operations. Each event carries a
// payload and is acknowledged with the same envelope shape as HTTP.
const (
	eventVerifyToken     = "auth:verify-token"
	eventGetUserByID     = "users:get-by-id"
	eventUserExists      = "users:exists"
	eventSessionInfo     = "session:get-info"
	eventSessionValidate = "session:validate"
)

// Socket timing constants.
const (
	defaultDialTimeout = 10 * time.Second
	defaultCallTimeout = 5 * time.Second

	// writeWait is the deadline for a single frame write.
	writeWait = 10 * time.Second
	// pongWait is how long to wait for a pong before treating the
	// connection as dead.
	pongWait = 60 * time.Second
	// pingPeriod must be less than pongWait.
	pingPeriod = 50 * time.Second

	// defaultReconnectAttempts bounds the reconnection loop after a drop.
	defaultReconnectAttempts = 5
	// defaultReconnectDelay is the base delay between attempts.
	defaultReconnectDelay = 2 * time.Second
	// defaultReconnectDelayCap caps the growing delay.
	defaultReconnectDelayCap = 10 * time.Second
)

// ErrSocketClosed is returned by Connect after Close has been called.
var ErrSocketClosed = errors.New("socket client closed")

// socketRequest is one request frame: an event name, a correlation id, and
// the operation payload.
type socketRequest struct {
	ID      string `json:"id"`
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}

// socketResponse is one acknowledgement frame, correlated by id.
type socketResponse struct {
	ID string `json:"id"`
	Envelope
}

// SocketClient talks to the account backend over a realtime websocket
// channel. Callback-style acks are normalized into the same awaitable
// (result, error) shape as the HTTP client: each call registers a pending
// channel keyed by correlation id and the read loop dispatches acks to it.
//
// When the connection drops, in-flight calls fail fast with a connection
// error (they never block for reconnection) and a bounded background
// reconnect loop tries to restore the channel.
type SocketClient struct {
	url         string
	header      http.Header
	dialTimeout time.Duration
	callTimeout time.Duration

	reconnectAttempts int
	reconnectDelay    time.Duration
	reconnectDelayCap time.Duration

	logger *slog.Logger
	dialer *websocket.Dialer

	connected atomic.Bool

	mu       sync.Mutex // guards conn, connDone, pending, closed
	conn     *websocket.Conn
	connDone chan struct{} // closed when conn is torn down
	pending  map[string]chan *Envelope
	closed   bool
	closeCh  chan struct{} // closed once on Close

	writeMu sync.Mutex // serializes data frame writes
	wg      sync.WaitGroup
}

// SocketOption is a functional option for configuring a SocketClient.
type SocketOption func(*SocketClient)

// WithSocketHeader sets extra handshake headers, e.g. a service credential.
func WithSocketHeader(h http.Header) SocketOption {
	return func(c *SocketClient) { c.header = h }
}

// WithCallTimeout sets the per-call acknowledgement timeout. Default: 5s.
func WithCallTimeout(d time.Duration) SocketOption {
	return func(c *SocketClient) { c.callTimeout = d }
}

// WithDialTimeout sets the handshake timeout. Default: 10s.
func WithDialTimeout(d time.Duration) SocketOption {
	return func(c *SocketClient) { c.dialTimeout = d }
}

// WithReconnectPolicy sets the bounded reconnection policy applied after a
// connection drop: at most attempts tries, delay growing linearly up to cap.
func WithReconnectPolicy(attempts int, delay, cap time.Duration) SocketOption {
	return func(c *SocketClient) {
		c.reconnectAttempts = attempts
		c.reconnectDelay = delay
		c.reconnectDelayCap = cap
	}
}

// WithSocketLogger sets the logger. Default: slog.Default().
func WithSocketLogger(l *slog.Logger) SocketOption {
	return func(c *SocketClient) { c.logger = l }
}

// NewSocketClient creates a socket transport client for the backend at the
// given ws:// or wss:// URL. The client does not dial until Connect.
func NewSocketClient(url string, opts ...SocketOption) *SocketClient {
	c := &SocketClient{
		url:               url,
		dialTimeout:       defaultDialTimeout,
		callTimeout:       defaultCallTimeout,
		reconnectAttempts: defaultReconnectAttempts,
		reconnectDelay:    defaultReconnectDelay,
		reconnectDelayCap: defaultReconnectDelayCap,
		logger:            slog.Default(),
		pending:           make(map[string]chan *Envelope),
		closeCh:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.dialer = &websocket.Dialer{HandshakeTimeout: c.dialTimeout}
	return c
}

// Connect dials the backend and starts the read and keepalive loops.
func (c *SocketClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrSocketClosed
	}
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	conn, resp, err := c.dialer.DialContext(ctx, c.url, c.header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return classifyTransportError("socket dial", err)
	}

	done := make(chan struct{})
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return ErrSocketClosed
	}
	if c.conn != nil {
		// Lost the dial race against a concurrent Connect (e.g. a caller
		// retry overlapping the reconnect loop). Keep the established
		// connection and discard this one before any loops start on it.
		c.mu.Unlock()
		conn.Close()
		return nil
	}
	c.conn = conn
	c.connDone = done
	c.mu.Unlock()
	c.connected.Store(true)

	c.wg.Add(2)
	go c.readLoop(conn, done)
	go c.pingLoop(conn, done)

	c.logger.Info("socket connected", "url", c.url)
	return nil
}

// Connected reports whether the socket currently has a live connection.
// The selector re-evaluates this on every call.
func (c *SocketClient) Connected() bool {
	return c.connected.Load()
}

// Close tears down the connection and stops reconnection. In-flight calls
// fail with a connection error.
func (c *SocketClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	if c.connDone != nil {
		close(c.connDone)
		c.connDone = nil
	}
	c.mu.Unlock()

	close(c.closeCh)
	c.connected.Store(false)
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		_ = conn.Close()
	}
	c.failPending(apierror.New(apierror.KindConnectionError, "socket client closed"))
	c.wg.Wait()
	return nil
}

// readLoop reads acknowledgement frames and dispatches them to the pending
// call channels. It exits when the connection drops, after which a bounded
// reconnect loop runs unless the client was closed.
func (c *SocketClient) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer c.wg.Done()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.logger.Error("socket read error", "error", err)
			}
			c.handleDrop(conn, done)
			return
		}

		var resp socketResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			c.logger.Error("socket frame decode error", "error", err)
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
		}
		c.mu.Unlock()

		if !ok {
			c.logger.Warn("socket ack with unknown correlation id", "id", resp.ID)
			continue
		}
		env := resp.Envelope
		ch <- &env
	}
}

// pingLoop sends keepalive pings until the connection is torn down.
func (c *SocketClient) pingLoop(conn *websocket.Conn, done chan struct{}) {
	defer c.wg.Done()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// handleDrop marks the connection dead, fails in-flight calls, and starts
// the bounded reconnect loop.
func (c *SocketClient) handleDrop(conn *websocket.Conn, done chan struct{}) {
	c.mu.Lock()
	if c.conn != conn {
		// Close already tore this connection down and closed its done
		// channel. Connections never start loops unless installed as
		// c.conn, so no other goroutine owns this teardown.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.connDone = nil
	closed := c.closed
	c.mu.Unlock()

	close(done)

	c.connected.Store(false)
	conn.Close()
	c.failPending(apierror.New(apierror.KindConnectionError, "socket connection lost"))

	if closed {
		return
	}

	c.wg.Add(1)
	go c.reconnect()
}

// reconnect tries to restore the connection with a bounded attempt count
// and a linearly growing, capped delay. In-flight and new calls are never
// blocked on this loop; they fail fast to the HTTP fallback instead.
func (c *SocketClient) reconnect() {
	defer c.wg.Done()

	for attempt := 1; attempt <= c.reconnectAttempts; attempt++ {
		delay := time.Duration(attempt) * c.reconnectDelay
		if delay > c.reconnectDelayCap {
			delay = c.reconnectDelayCap
		}
		select {
		case <-c.closeCh:
			return
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.dialTimeout)
		err := c.Connect(ctx)
		cancel()
		if err == nil {
			return
		}
		c.logger.Warn("socket reconnect attempt failed",
			"attempt", attempt,
			"max_attempts", c.reconnectAttempts,
			"error", err,
		)
	}
	c.logger.Error("socket reconnect gave up", "attempts", c.reconnectAttempts)
}

// failPending delivers err to every in-flight call and clears the map.
func (c *SocketClient) failPending(err *apierror.Error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[string]chan *Envelope)
	c.mu.Unlock()

	env := &Envelope{
		Success: false,
		Error:   &WireError{Code: string(err.Kind), Message: err.Message},
	}
	for _, ch := range pending {
		ch <- env
	}
}

// call issues one event and awaits its acknowledgement.
func (c *SocketClient) call(ctx context.Context, event string, payload, result any) error {
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return apierror.New(apierror.KindConnectionError, "socket not connected")
	}
	id := uuid.New().String()
	ch := make(chan *Envelope, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	cleanup := func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}

	req := socketRequest{ID: id, Event: event, Payload: payload}
	c.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := conn.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		cleanup()
		return classifyTransportError("socket write", err)
	}

	timer := time.NewTimer(c.callTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		cleanup()
		return classifyTransportError(fmt.Sprintf("socket call %s", event), ctx.Err())
	case <-timer.C:
		cleanup()
		return apierror.New(apierror.KindTimeout, fmt.Sprintf("socket call %s timed out", event))
	case env := <-ch:
		return decodeEnvelope(env, result)
	}
}

// VerifyToken implements Backend.
func (c *SocketClient) VerifyToken(ctx context.Context, token string, kind account.TokenKind) (*account.TokenVerification, error) {
	c.logger.Debug("verifying token over socket",
		"token_kind", string(kind),
		"token_fp", fingerprint.Token(token),
	)
	payload := map[string]string{"token": token, "tokenType": string(kind)}
	var result account.TokenVerification
	if err := c.call(ctx, eventVerifyToken, payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetUserByID implements Backend.
func (c *SocketClient) GetUserByID(ctx context.Context, accountID string) (*account.Account, error) {
	payload := map[string]string{"accountId": accountID}
	var result account.Account
	if err := c.call(ctx, eventGetUserByID, payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CheckUserExists implements Backend.
func (c *SocketClient) CheckUserExists(ctx context.Context, accountID string) (bool, error) {
	payload := map[string]string{"accountId": accountID}
	var result existsPayload
	if err := c.call(ctx, eventUserExists, payload, &result); err != nil {
		return false, err
	}
	return result.Exists, nil
}

// GetSessionInfo implements Backend.
func (c *SocketClient) GetSessionInfo(ctx context.Context, sessionCookie string) (*account.SessionInfo, error) {
	payload := map[string]string{"sessionCookie": sessionCookie}
	var result account.SessionInfo
	if err := c.call(ctx, eventSessionInfo, payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ValidateSession implements Backend.
func (c *SocketClient) ValidateSession(ctx context.Context, accountID, sessionCookie string) (bool, error) {
	payload := map[string]string{"accountId": accountID, "sessionCookie": sessionCookie}
	var result validPayload
	if err := c.call(ctx, eventSessionValidate, payload, &result); err != nil {
		return false, err
	}
	return result.Valid, nil
}

// Compile-time check that SocketClient implements Backend.
var _ Backend = (*SocketClient)(nil)

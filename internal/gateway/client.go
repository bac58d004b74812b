// Package gateway implements the WebSocket session client for the
// OpenClaw gateway protocol v3: challenge handshake, request/response
// correlation over a single connection, streaming chat event
// normalization, and exponential-backoff reconnection.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Onepiecedad/skyland-command-center/internal/metrics"
)

var (
	// ErrNotConnected is returned synchronously when a request is
	// attempted without an authenticated connection. The pending table
	// is never touched in that case.
	ErrNotConnected = errors.New("not connected to gateway")

	// ErrConnectionClosed rejects every request still pending when the
	// connection drops.
	ErrConnectionClosed = errors.New("gateway connection closed")
)

// closeHandshakeFailed is the close code used when the gateway rejects
// the connect request. Distinct from normal closure so the reconnect
// path treats it as an abnormal close.
const closeHandshakeFailed = 4008

const protocolVersion = 3

// Config holds gateway client configuration.
type Config struct {
	// URL is the WebSocket URL, e.g. "ws://localhost:18789/ws/gateway".
	URL string

	// Token is the gateway bearer token. Omitted from the connect
	// request when empty.
	Token string

	// ClientID identifies this client to the gateway.
	ClientID string

	// Scopes requested from the gateway.
	Scopes []string

	// UserAgent and Locale are reported in the connect request.
	UserAgent string
	Locale    string

	// DialTimeout bounds the WebSocket opening handshake.
	DialTimeout time.Duration

	// ConnectDebounce is how long to wait after transport open for the
	// server to push a connect.challenge before sending connect anyway.
	ConnectDebounce time.Duration

	// BackoffFloor, BackoffFactor and BackoffCeiling shape the
	// reconnect delay: min(floor*factor^K, ceiling) after K
	// consecutive abnormal closes, reset to floor on a successful
	// handshake.
	BackoffFloor   time.Duration
	BackoffFactor  float64
	BackoffCeiling time.Duration
}

// DefaultConfig returns sane defaults.
func DefaultConfig() Config {
	return Config{
		URL:             "ws://localhost:18789/ws/gateway",
		ClientID:        "scc-dashboard",
		Scopes:          []string{"operator.admin"},
		UserAgent:       "skyland-command-center/1.0",
		Locale:          "en-US",
		DialTimeout:     10 * time.Second,
		ConnectDebounce: 250 * time.Millisecond,
		BackoffFloor:    1 * time.Second,
		BackoffFactor:   2.0,
		BackoffCeiling:  30 * time.Second,
	}
}

// callResult resolves one pending request: a payload or an error,
// never both, delivered exactly once.
type callResult struct {
	payload json.RawMessage
	err     error
}

// Client is a resilient session client for a single gateway endpoint.
// Construct one instance at startup and hand it to every consumer;
// there is no ambient shared socket.
type Client struct {
	cfg        Config
	logger     zerolog.Logger
	callbacks  Callbacks
	metrics    *metrics.Metrics
	instanceID string

	writeMu sync.Mutex // serializes frame writes to the transport

	mu             sync.Mutex
	conn           *websocket.Conn
	status         Status
	stopped        bool
	pending        map[string]chan callResult // request ID -> result channel
	backoff        time.Duration
	nonce          string // challenge nonce, held between receipt and handshake completion
	connectSent    bool   // connect goes out at most once per connection
	debounceTimer  *time.Timer
	reconnectTimer *time.Timer
}

// New creates a gateway client. The metrics collector may be nil.
func New(cfg Config, cb Callbacks, m *metrics.Metrics, logger zerolog.Logger) *Client {
	def := DefaultConfig()
	if cfg.ClientID == "" {
		cfg.ClientID = def.ClientID
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = def.Scopes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.Locale == "" {
		cfg.Locale = def.Locale
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = def.DialTimeout
	}
	if cfg.ConnectDebounce == 0 {
		cfg.ConnectDebounce = def.ConnectDebounce
	}
	if cfg.BackoffFloor == 0 {
		cfg.BackoffFloor = def.BackoffFloor
	}
	if cfg.BackoffFactor == 0 {
		cfg.BackoffFactor = def.BackoffFactor
	}
	if cfg.BackoffCeiling == 0 {
		cfg.BackoffCeiling = def.BackoffCeiling
	}

	return &Client{
		cfg:        cfg,
		logger:     logger.With().Str("component", "gateway").Logger(),
		callbacks:  cb,
		metrics:    m,
		instanceID: uuid.New().String(),
		status:     StatusDisconnected,
		pending:    make(map[string]chan callResult),
		backoff:    cfg.BackoffFloor,
	}
}

// Start begins connecting. Fire-and-forget: progress is reported via
// the status callback. Calling Start while already connecting or
// connected is a no-op.
func (c *Client) Start() {
	c.mu.Lock()
	c.stopped = false
	if c.status != StatusDisconnected {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	go c.dial()
}

// Stop cancels all timers, closes the transport with a normal-closure
// code and suppresses reconnection. Pending requests are rejected by
// the read loop teardown.
func (c *Client) Stop() {
	c.mu.Lock()
	c.stopped = true
	if c.debounceTimer != nil {
		c.debounceTimer.Stop()
		c.debounceTimer = nil
	}
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.backoff = c.cfg.BackoffFloor
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		_ = conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		conn.Close()
		return // readLoop teardown finishes the state transition
	}
	c.setStatus(StatusDisconnected)
}

// Status returns the current connection state.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// IsConnected reports whether the handshake has completed.
func (c *Client) IsConnected() bool {
	return c.Status() == StatusConnected
}

func (c *Client) setStatus(s Status) {
	c.mu.Lock()
	if c.status == s {
		c.mu.Unlock()
		return
	}
	c.status = s
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.SetConnected(s == StatusConnected)
	}
	if c.callbacks.OnStatusChange != nil {
		c.callbacks.OnStatusChange(s)
	}
}

// dial opens a transport connection and arms the connect debounce. It
// never sends connect itself; that is triggered by the challenge event
// or the debounce, whichever comes first.
func (c *Client) dial() {
	c.mu.Lock()
	if c.stopped || c.status != StatusDisconnected {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.setStatus(StatusConnecting)

	c.logger.Info().Str("url", c.cfg.URL).Msg("connecting to gateway")

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.DialTimeout}
	conn, _, err := dialer.Dial(c.cfg.URL, nil)
	if err != nil {
		c.logger.Warn().Err(err).Msg("gateway dial failed")
		c.setStatus(StatusDisconnected)
		c.scheduleReconnect()
		return
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.connectSent = false
	c.nonce = ""
	c.debounceTimer = time.AfterFunc(c.cfg.ConnectDebounce, c.sendConnect)
	c.mu.Unlock()

	go c.readLoop(conn)
}

// sendConnect sends the connect request for the current connection.
// Safe to trigger from both the challenge path and the debounce path;
// only the first caller wins.
func (c *Client) sendConnect() {
	c.mu.Lock()
	if c.stopped || c.conn == nil || c.connectSent {
		c.mu.Unlock()
		return
	}
	c.connectSent = true
	if c.debounceTimer != nil {
		c.debounceTimer.Stop()
		c.debounceTimer = nil
	}
	conn := c.conn

	params := connectParams{
		MinProtocol: protocolVersion,
		MaxProtocol: protocolVersion,
		Client: connectClient{
			ID:         c.cfg.ClientID,
			Version:    c.cfg.UserAgent,
			Platform:   runtime.GOOS,
			Mode:       "dashboard",
			InstanceID: c.instanceID,
		},
		Role:      "operator",
		Scopes:    c.cfg.Scopes,
		Caps:      []string{},
		UserAgent: c.cfg.UserAgent,
		Locale:    c.cfg.Locale,
	}
	if c.cfg.Token != "" {
		params.Auth = &connectAuth{Token: c.cfg.Token}
	}

	reqID := uuid.New().String()
	respCh := make(chan callResult, 1)
	c.pending[reqID] = respCh
	c.mu.Unlock()

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		c.failHandshake(conn, fmt.Errorf("marshaling connect params: %w", err))
		return
	}

	if err := c.writeFrame(conn, frame{Type: "req", ID: reqID, Method: "connect", Params: paramsJSON}); err != nil {
		c.mu.Lock()
		delete(c.pending, reqID)
		c.mu.Unlock()
		c.failHandshake(conn, fmt.Errorf("sending connect: %w", err))
		return
	}

	c.logger.Debug().Str("reqId", reqID).Msg("connect request sent")

	go c.awaitHello(conn, respCh)
}

// awaitHello completes the handshake once the connect response arrives.
func (c *Client) awaitHello(conn *websocket.Conn, respCh chan callResult) {
	res := <-respCh
	if res.err != nil {
		c.failHandshake(conn, res.err)
		return
	}

	c.mu.Lock()
	c.backoff = c.cfg.BackoffFloor
	c.mu.Unlock()
	c.setStatus(StatusConnected)

	c.logger.Info().Msg("gateway handshake complete")

	if c.callbacks.OnHello != nil {
		c.callbacks.OnHello(res.payload)
	}
}

// failHandshake forces the transport closed with a distinct close code
// so the standard disconnect/reconnect path takes over.
func (c *Client) failHandshake(conn *websocket.Conn, err error) {
	c.logger.Warn().Err(err).Msg("gateway handshake failed")
	if c.callbacks.OnError != nil {
		c.callbacks.OnError(err.Error())
	}
	_ = conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(closeHandshakeFailed, "handshake failed"),
	)
	conn.Close()
}

func (c *Client) writeFrame(conn *websocket.Conn, f frame) error {
	b, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshaling frame: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, b)
}

// readLoop reads frames until the connection drops, then tears down
// connection-scoped state and schedules a reconnect unless stopped.
func (c *Client) readLoop(conn *websocket.Conn) {
	defer c.teardown(conn)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			stopped := c.stopped
			c.mu.Unlock()
			if !stopped && !errors.Is(err, websocket.ErrCloseSent) {
				c.logger.Warn().Err(err).Msg("gateway read error")
			}
			return
		}

		var f frame
		if err := json.Unmarshal(msg, &f); err != nil {
			c.logger.Warn().Err(err).Msg("dropping unparsable frame")
			continue
		}

		switch f.Type {
		case "res":
			c.dispatchResponse(f)
		case "event":
			c.dispatchEvent(f)
		}
	}
}

func (c *Client) dispatchResponse(f frame) {
	c.mu.Lock()
	ch, ok := c.pending[f.ID]
	if ok {
		delete(c.pending, f.ID)
	}
	c.mu.Unlock()

	if !ok {
		// The request may have been abandoned by a prior disconnect.
		c.logger.Debug().Str("id", f.ID).Msg("dropping unmatched response")
		return
	}

	if f.OK != nil && *f.OK {
		ch <- callResult{payload: f.Payload}
		return
	}

	msg := "gateway request failed"
	if f.Error != nil && f.Error.Message != "" {
		msg = f.Error.Message
	}
	ch <- callResult{err: errors.New(msg)}
}

func (c *Client) dispatchEvent(f frame) {
	switch f.Event {
	case "connect.challenge":
		var ch challengePayload
		if err := json.Unmarshal(f.Payload, &ch); err != nil {
			c.logger.Warn().Err(err).Msg("dropping malformed challenge")
			return
		}
		c.mu.Lock()
		c.nonce = ch.Nonce
		c.mu.Unlock()
		c.logger.Debug().Msg("received connect.challenge")
		c.sendConnect()

	case "presence":
		if c.callbacks.OnPresence == nil {
			return
		}
		var entries []json.RawMessage
		if err := json.Unmarshal(f.Payload, &entries); err != nil {
			var wrapped struct {
				Presence []json.RawMessage `json:"presence"`
			}
			if err := json.Unmarshal(f.Payload, &wrapped); err != nil {
				c.logger.Warn().Err(err).Msg("dropping malformed presence event")
				return
			}
			entries = wrapped.Presence
		}
		c.callbacks.OnPresence(entries)

	case "chat":
		chunk, ok := normalizeChatEvent(f.Payload)
		if !ok {
			c.logger.Warn().Msg("dropping malformed chat event")
			return
		}
		if c.metrics != nil {
			c.metrics.RecordChatEvent(string(chunk.Kind))
		}
		if chunk.Kind == ChunkError && c.callbacks.OnError != nil {
			c.callbacks.OnError(chunk.Content)
		}
		if c.callbacks.OnChatEvent != nil {
			c.callbacks.OnChatEvent(chunk)
		}

	default:
		c.logger.Trace().Str("event", f.Event).Msg("event received")
	}
}

// teardown rejects all pending requests, clears connection-scoped
// state and schedules a reconnect unless the client was stopped.
func (c *Client) teardown(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.connectSent = false
	c.nonce = ""
	if c.debounceTimer != nil {
		c.debounceTimer.Stop()
		c.debounceTimer = nil
	}
	rejected := len(c.pending)
	for id, ch := range c.pending {
		delete(c.pending, id)
		ch <- callResult{err: ErrConnectionClosed}
	}
	stopped := c.stopped
	c.mu.Unlock()

	conn.Close()
	c.setStatus(StatusDisconnected)

	if rejected > 0 {
		c.logger.Warn().Int("rejected", rejected).Msg("rejected pending requests on disconnect")
	}

	if !stopped {
		c.scheduleReconnect()
	}
}

// scheduleReconnect arms the reconnect timer with the current backoff
// delay and advances the backoff for the next cycle.
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	if c.stopped || c.reconnectTimer != nil {
		c.mu.Unlock()
		return
	}

	delay := time.Duration(float64(c.backoff) * c.cfg.BackoffFactor)
	if delay > c.cfg.BackoffCeiling {
		delay = c.cfg.BackoffCeiling
	}
	c.backoff = delay

	c.reconnectTimer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		c.reconnectTimer = nil
		c.mu.Unlock()
		c.dial()
	})
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.RecordReconnect()
	}
	c.logger.Info().Dur("delay", delay).Msg("reconnect scheduled")
}

// request sends one correlated request and waits for its response. The
// pending entry is registered before the frame is written and removed
// exactly once: by the matching response, by context cancellation, or
// by bulk rejection on disconnect.
func (c *Client) request(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s params: %w", method, err)
	}

	c.mu.Lock()
	if c.status != StatusConnected || c.conn == nil {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	conn := c.conn
	reqID := uuid.New().String()
	respCh := make(chan callResult, 1)
	c.pending[reqID] = respCh
	c.mu.Unlock()

	start := time.Now()

	if err := c.writeFrame(conn, frame{Type: "req", ID: reqID, Method: method, Params: paramsJSON}); err != nil {
		c.mu.Lock()
		delete(c.pending, reqID)
		c.mu.Unlock()
		c.observe(method, "error", start)
		return nil, fmt.Errorf("sending %s request: %w", method, err)
	}

	select {
	case res := <-respCh:
		if res.err != nil {
			c.observe(method, "error", start)
			return nil, res.err
		}
		c.observe(method, "ok", start)
		return res.payload, nil

	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, reqID)
		c.mu.Unlock()
		c.observe(method, "canceled", start)
		return nil, ctx.Err()
	}
}

func (c *Client) observe(method, status string, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordRequest(method, status)
	c.metrics.ObserveRequestDuration(method, time.Since(start).Seconds())
}

// SendChatMessage submits a message to a session. It resolves once the
// gateway acknowledges the request; the reply itself arrives later as
// streamed chat events.
func (c *Client) SendChatMessage(ctx context.Context, sessionKey, message string, attachments []Attachment) (*SendResult, error) {
	params := chatSendParams{
		SessionKey:     sessionKey,
		Message:        message,
		IdempotencyKey: uuid.New().String(),
	}
	for _, a := range attachments {
		params.Attachments = append(params.Attachments, wireAttachment{
			FileName: a.FileName,
			MimeType: a.MimeType,
			Content:  a.Content,
		})
	}

	payload, err := c.request(ctx, "chat.send", params)
	if err != nil {
		return nil, err
	}

	var result SendResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("parsing chat.send response: %w", err)
	}

	c.logger.Debug().
		Str("session", sessionKey).
		Str("runId", result.RunID).
		Msg("chat message accepted")

	return &result, nil
}

// AbortChat asks the gateway to cancel the in-flight run. Advisory:
// chunks already in flight may still be delivered.
func (c *Client) AbortChat(ctx context.Context) error {
	_, err := c.request(ctx, "chat.abort", struct{}{})
	return err
}

// ChatHistory fetches normalized messages for a session. Limit
// defaults to 200.
func (c *Client) ChatHistory(ctx context.Context, sessionKey string, limit int) ([]ChatMessage, error) {
	if limit <= 0 {
		limit = 200
	}

	payload, err := c.request(ctx, "chat.history", chatHistoryParams{SessionKey: sessionKey, Limit: limit})
	if err != nil {
		return nil, err
	}

	var result chatHistoryResult
	if err := json.Unmarshal(payload, &result); err != nil {
		// Older gateways return the message array directly.
		if err2 := json.Unmarshal(payload, &result.Messages); err2 != nil {
			return nil, fmt.Errorf("parsing chat.history response: %w", err)
		}
	}

	messages := make([]ChatMessage, 0, len(result.Messages))
	for _, m := range result.Messages {
		messages = append(messages, normalizeMessage(m))
	}
	return messages, nil
}

// Nodes lists connected remote workers.
func (c *Client) Nodes(ctx context.Context) ([]NodeInfo, error) {
	payload, err := c.request(ctx, "node.list", struct{}{})
	if err != nil {
		return nil, err
	}

	var result nodeListResult
	if err := json.Unmarshal(payload, &result); err != nil {
		if err2 := json.Unmarshal(payload, &result.Nodes); err2 != nil {
			return nil, fmt.Errorf("parsing node.list response: %w", err)
		}
	}
	return result.Nodes, nil
}

// Sessions lists session descriptors for an agent. Soft-fail: any
// error, including an unsupported method, yields an empty list.
func (c *Client) Sessions(ctx context.Context, agentID string) []SessionInfo {
	if agentID == "" {
		agentID = "main"
	}

	payload, err := c.request(ctx, "sessions.list", sessionsListParams{AgentID: agentID})
	if err != nil {
		c.logger.Warn().Err(err).Str("agent", agentID).Msg("sessions.list failed")
		return []SessionInfo{}
	}

	var result sessionsListResult
	if err := json.Unmarshal(payload, &result); err != nil {
		if err2 := json.Unmarshal(payload, &result.Sessions); err2 != nil {
			c.logger.Warn().Err(err).Msg("unparsable sessions.list response")
			return []SessionInfo{}
		}
	}
	if result.Sessions == nil {
		return []SessionInfo{}
	}
	return result.Sessions
}

// CreateSession mints a fresh session key and warms it up on the
// gateway. The warm-up is best-effort; the key is returned regardless.
func (c *Client) CreateSession(ctx context.Context, agentID string) string {
	if agentID == "" {
		agentID = "main"
	}
	key := fmt.Sprintf("agent:%s:scc:%s", agentID, randomSuffix())

	if _, err := c.request(ctx, "chat.history", chatHistoryParams{SessionKey: key, Limit: 1}); err != nil {
		c.logger.Debug().Err(err).Str("session", key).Msg("session warm-up skipped")
	}

	return key
}

// RPC sends an arbitrary method and returns the raw payload.
func (c *Client) RPC(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	return c.request(ctx, method, params)
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}

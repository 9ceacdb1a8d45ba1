package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrClientClosed is returned by operations on a closed WSClientImpl.
var ErrClientClosed = errors.New("websocket client closed")

// WSClientConfig configures WebSocket client behavior.
type WSClientConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// SubscribeTimeout bounds the wait for a subscription id.
	SubscribeTimeout time.Duration
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		SubscribeTimeout:  30 * time.Second,
	}
}

// subscription is one logsSubscribe stream. Its server id changes across reconnects.
type subscription struct {
	filter LogsFilter
	ch     chan LogNotification
}

// pendingSub is a logsSubscribe request awaiting its subscription id.
type pendingSub struct {
	sub     *subscription
	confirm chan int64
}

// WSClientImpl implements WSClient using gorilla/websocket.
// It reconnects with exponential backoff and resubscribes every active filter.
type WSClientImpl struct {
	endpoint string
	config   WSClientConfig
	logger   *zap.Logger

	connMu sync.Mutex
	conn   *websocket.Conn

	closed    atomic.Bool
	requestID atomic.Uint64

	mu      sync.Mutex
	subs    map[int64]*subscription // by server subscription id
	pending map[uint64]*pendingSub  // by request id

	done chan struct{}
	wg   sync.WaitGroup
}

// NewWSClient creates a new WebSocket client and connects to the endpoint.
func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig, logger *zap.Logger) (*WSClientImpl, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &WSClientImpl{
		endpoint: endpoint,
		config:   cfg,
		logger:   logger,
		subs:     make(map[int64]*subscription),
		pending:  make(map[uint64]*pendingSub),
		done:     make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()

	return c, nil
}

// connect establishes WebSocket connection.
func (c *WSClientImpl) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	return nil
}

// SubscribeLogs implements WSClient.
func (c *WSClientImpl) SubscribeLogs(ctx context.Context, filter LogsFilter) (<-chan LogNotification, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}

	p := &pendingSub{
		sub:     &subscription{filter: filter, ch: make(chan LogNotification, 1024)},
		confirm: make(chan int64, 1),
	}
	reqID, err := c.sendSubscribe(p)
	if err != nil {
		return nil, err
	}

	forget := func() {
		c.mu.Lock()
		delete(c.pending, reqID)
		c.mu.Unlock()
	}

	timer := time.NewTimer(c.config.SubscribeTimeout)
	defer timer.Stop()

	select {
	case _, ok := <-p.confirm:
		if !ok {
			return nil, ErrClientClosed
		}
		return p.sub.ch, nil
	case <-timer.C:
		forget()
		return nil, fmt.Errorf("subscription timeout after %s", c.config.SubscribeTimeout)
	case <-c.done:
		return nil, ErrClientClosed
	case <-ctx.Done():
		forget()
		return nil, ctx.Err()
	}
}

// sendSubscribe registers p and writes its logsSubscribe request.
// The confirmation moves p.sub into c.subs before p.confirm fires.
func (c *WSClientImpl) sendSubscribe(p *pendingSub) (uint64, error) {
	mentions := map[string]interface{}{"all": nil}
	if len(p.sub.filter.Mentions) > 0 {
		mentions = map[string]interface{}{"mentions": p.sub.filter.Mentions}
	}

	reqID := c.requestID.Add(1)
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "logsSubscribe",
		Params: []interface{}{
			mentions,
			map[string]string{"commitment": "confirmed"},
		},
	}

	c.mu.Lock()
	c.pending[reqID] = p
	c.mu.Unlock()

	if err := c.write(func(conn *websocket.Conn) error { return conn.WriteJSON(req) }); err != nil {
		return reqID, fmt.Errorf("write subscribe: %w", err)
	}
	return reqID, nil
}

// write runs fn against the live connection under the write deadline.
func (c *WSClientImpl) write(fn func(*websocket.Conn) error) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return errors.New("not connected")
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return fn(c.conn)
}

// Close implements WSClient.
func (c *WSClientImpl) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.wg.Wait()

	c.mu.Lock()
	for id, sub := range c.subs {
		close(sub.ch)
		delete(c.subs, id)
	}
	for id, p := range c.pending {
		close(p.confirm)
		close(p.sub.ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()
	return nil
}

// readLoop reads messages and dispatches them. On a read error it reconnects
// with exponential backoff and resubscribes.
func (c *WSClientImpl) readLoop() {
	defer c.wg.Done()

	delay := c.config.ReconnectDelay
	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn != nil {
			_ = conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
			_, message, err := conn.ReadMessage()
			if err == nil {
				delay = c.config.ReconnectDelay
				c.handleMessage(message)
				continue
			}
			if c.closed.Load() {
				return
			}
			c.logger.Warn("websocket read failed, reconnecting", zap.Error(err), zap.Duration("delay", delay))
		}

		select {
		case <-c.done:
			return
		case <-time.After(delay):
		}

		if err := c.reconnect(); err != nil {
			c.logger.Warn("websocket reconnect failed", zap.Error(err))
			delay *= 2
			if delay > c.config.MaxReconnectDelay {
				delay = c.config.MaxReconnectDelay
			}
		}
	}
}

// reconnect replaces the connection and re-sends every subscription, confirmed
// or still pending. Confirmations arrive through the read loop.
func (c *WSClientImpl) reconnect() error {
	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.connect(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	resend := make([]*pendingSub, 0, len(c.subs)+len(c.pending))
	for _, sub := range c.subs {
		resend = append(resend, &pendingSub{sub: sub, confirm: make(chan int64, 1)})
	}
	for _, p := range c.pending {
		resend = append(resend, p)
	}
	c.subs = make(map[int64]*subscription)
	c.pending = make(map[uint64]*pendingSub)
	c.mu.Unlock()

	// Failed writes stay pending and are re-sent on the next reconnect.
	var firstErr error
	for _, p := range resend {
		if _, err := c.sendSubscribe(p); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("resubscribe: %w", err)
		}
	}
	return firstErr
}

// handleMessage processes incoming WebSocket message.
func (c *WSClientImpl) handleMessage(message []byte) {
	var resp wsSubscribeResponse
	if err := json.Unmarshal(message, &resp); err == nil && resp.Result > 0 {
		c.handleSubscribeResponse(&resp)
		return
	}

	var notif wsNotification
	if err := json.Unmarshal(message, &notif); err == nil && notif.Method == "logsNotification" {
		c.handleLogsNotification(&notif)
		return
	}

	var errResp wsErrorResponse
	if err := json.Unmarshal(message, &errResp); err == nil && errResp.Error != nil {
		c.logger.Warn("websocket error response",
			zap.Uint64("request_id", errResp.ID),
			zap.Int("code", errResp.Error.Code),
			zap.String("message", errResp.Error.Message),
		)
	}
}

// handleSubscribeResponse registers the confirmed subscription.
func (c *WSClientImpl) handleSubscribeResponse(resp *wsSubscribeResponse) {
	c.mu.Lock()
	p, ok := c.pending[resp.ID]
	if ok {
		delete(c.pending, resp.ID)
		c.subs[resp.Result] = p.sub
	}
	c.mu.Unlock()

	if ok {
		p.confirm <- resp.Result
	}
}

// handleLogsNotification dispatches log notification to subscriber.
func (c *WSClientImpl) handleLogsNotification(notif *wsNotification) {
	if notif.Params == nil {
		return
	}

	value := notif.Params.Result.Value
	n := LogNotification{
		Signature: value.Signature,
		Logs:      value.Logs,
		Err:       value.Err,
	}
	if notif.Params.Result.Context != nil {
		n.Slot = notif.Params.Result.Context.Slot
	}

	c.mu.Lock()
	sub, ok := c.subs[notif.Params.Subscription]
	c.mu.Unlock()
	if !ok {
		return
	}

	// Block rather than drop; the buffer absorbs bursts.
	select {
	case sub.ch <- n:
	case <-c.done:
	}
}

// pingLoop sends periodic ping frames to keep connection alive.
func (c *WSClientImpl) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			// A dead connection surfaces as a read error.
			_ = c.write(func(conn *websocket.Conn) error {
				return conn.WriteMessage(websocket.PingMessage, nil)
			})
		}
	}
}

// WebSocket message types

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type wsSubscribeResponse struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Result  int64  `json:"result"` // subscription ID
}

type wsErrorResponse struct {
	ID    uint64 `json:"id"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type wsNotification struct {
	JSONRPC string                `json:"jsonrpc"`
	Method  string                `json:"method"`
	Params  *wsNotificationParams `json:"params"`
}

type wsNotificationParams struct {
	Subscription int64                `json:"subscription"`
	Result       wsNotificationResult `json:"result"`
}

type wsNotificationResult struct {
	Context *wsContext  `json:"context"`
	Value   wsLogsValue `json:"value"`
}

type wsContext struct {
	Slot int64 `json:"slot"`
}

type wsLogsValue struct {
	Signature string      `json:"signature"`
	Logs      []string    `json:"logs"`
	Err       interface{} `json:"err"`
}

// Compile-time interface check.
var _ WSClient = (*WSClientImpl)(nil)

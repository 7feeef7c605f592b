package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wolfman30/chat-relay/pkg/logging"
)

const (
	frameTypeMessage = "message"
	frameTypeReply   = "reply"
)

// bridgeFrame is the JSON envelope exchanged with the messaging bridge.
type bridgeFrame struct {
	Type    string         `json:"type"`
	Message *Inbound       `json:"message,omitempty"`
	Reply   *OutboundReply `json:"reply,omitempty"`
}

// ErrBridgeDisconnected is returned when a reply is sent while no bridge connection is open.
var ErrBridgeDisconnected = errors.New("messaging: bridge not connected")

// BridgeClient keeps a websocket connection to a messaging bridge.
// Inbound messages arrive as "message" frames; replies leave as "reply" frames.
type BridgeClient struct {
	url    string
	dialer *websocket.Dialer
	logger *logging.Logger

	minBackoff   time.Duration
	maxBackoff   time.Duration
	writeTimeout time.Duration

	connMu  sync.RWMutex
	conn    *websocket.Conn
	writeMu sync.Mutex

	wg sync.WaitGroup
}

// NewBridgeClient creates a client for the bridge at url (ws:// or wss://).
func NewBridgeClient(url string, logger *logging.Logger) *BridgeClient {
	if logger == nil {
		logger = logging.Default()
	}
	return &BridgeClient{
		url:          url,
		dialer:       &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger:       logger,
		minBackoff:   time.Second,
		maxBackoff:   30 * time.Second,
		writeTimeout: 10 * time.Second,
	}
}

// WithBackoff overrides the reconnect backoff bounds.
func (c *BridgeClient) WithBackoff(lo, hi time.Duration) *BridgeClient {
	if lo > 0 {
		c.minBackoff = lo
	}
	if hi >= c.minBackoff {
		c.maxBackoff = hi
	}
	return c
}

var _ ReplyMessenger = (*BridgeClient)(nil)

// Run connects to the bridge and feeds inbound messages to handler until ctx is done.
// Dropped connections are re-established with exponential backoff.
func (c *BridgeClient) Run(ctx context.Context, handler InboundHandler) error {
	if handler == nil {
		return errors.New("messaging: inbound handler required")
	}
	backoff := c.minBackoff
	for {
		conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("bridge dial failed", "url", c.url, "error", err, "retry_in", backoff.String())
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > c.maxBackoff {
				backoff = c.maxBackoff
			}
			continue
		}

		backoff = c.minBackoff
		c.logger.Info("bridge connected", "url", c.url)
		c.setConn(conn)
		err = c.readLoop(ctx, conn, handler)
		c.setConn(nil)
		_ = conn.Close()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("bridge connection lost", "error", err)
	}
}

func (c *BridgeClient) readLoop(ctx context.Context, conn *websocket.Conn, handler InboundHandler) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		var frame bridgeFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return err
		}
		if frame.Type != frameTypeMessage || frame.Message == nil {
			c.logger.Debug("ignoring bridge frame", "type", frame.Type)
			continue
		}
		msg := *frame.Message
		if msg.From == "" || msg.Body == "" {
			c.logger.Debug("ignoring incomplete bridge message", "id", msg.ID)
			continue
		}
		if msg.ReceivedAt.IsZero() {
			msg.ReceivedAt = time.Now().UTC()
		}
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			handler.HandleMessage(context.WithoutCancel(ctx), msg)
		}()
	}
}

// SendReply writes reply as a frame on the current connection.
func (c *BridgeClient) SendReply(ctx context.Context, reply OutboundReply) error {
	if err := validateReply(reply); err != nil {
		return err
	}
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	if conn == nil {
		return ErrBridgeDisconnected
	}

	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(bridgeFrame{Type: frameTypeReply, Reply: &reply}); err != nil {
		return fmt.Errorf("messaging: bridge write: %w", err)
	}
	return nil
}

// Wait blocks until every dispatched inbound message finished.
func (c *BridgeClient) Wait() {
	c.wg.Wait()
}

func (c *BridgeClient) setConn(conn *websocket.Conn) {
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
}

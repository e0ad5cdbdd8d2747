package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/harborwallet/walletkit-backend/internal/session"
)

// frame is the wire format spoken with the relay endpoint. Inbound frames
// carry session requests, outbound frames subscribe to topics or publish
// responses.
type frame struct {
	Op      string          `json:"op"` // "subscribe" | "publish" | "request"
	Topic   string          `json:"topic"`
	ChainID string          `json:"chainId,omitempty"`
	Request *requestBody    `json:"request,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type requestBody struct {
	ID     int64           `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// ClientOptions configures the websocket relay client.
type ClientOptions struct {
	PingInterval time.Duration
	WriteTimeout time.Duration
}

// Client is the websocket transport to the WalletConnect relay. Writes are
// serialized through a mutex; the read loop runs on its own goroutine.
type Client struct {
	url    string
	logger *zap.SugaredLogger
	opts   ClientOptions

	writeMu sync.Mutex
	conn    *websocket.Conn

	closeOnce sync.Once
	done      chan struct{}
}

func NewClient(url string, logger *zap.SugaredLogger, opts ClientOptions) *Client {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	return &Client{
		url:    url,
		logger: logger,
		opts:   opts,
		done:   make(chan struct{}),
	}
}

// Connect dials the relay endpoint. Call before Subscribe or Start.
func (c *Client) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial relay %s: %w", c.url, err)
	}
	c.conn = conn
	c.logger.Infow("Connected to relay", "url", c.url)
	return nil
}

// Subscribe registers interest in session topics.
func (c *Client) Subscribe(ctx context.Context, topics ...string) error {
	for _, topic := range topics {
		if err := c.writeFrame(frame{Op: "subscribe", Topic: topic}); err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
	}
	return nil
}

// Start runs the read and keepalive loops, delivering each inbound session
// request to the handler on its own goroutine. It returns immediately.
func (c *Client) Start(ctx context.Context, h Handler) {
	go c.readLoop(ctx, h)
	go c.pingLoop(ctx)
}

func (c *Client) readLoop(ctx context.Context, h Handler) {
	defer c.logger.Infow("Relay read loop stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
		}

		var f frame
		if err := c.conn.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warnw("Relay connection closed unexpectedly", "error", err)
			}
			return
		}

		if f.Op != "request" || f.Request == nil {
			c.logger.Debugw("Ignoring non-request relay frame", "op", f.Op, "topic", f.Topic)
			continue
		}

		req := session.Request{
			ID:        f.Request.ID,
			Topic:     f.Topic,
			Method:    f.Request.Method,
			NetworkID: f.ChainID,
			Params:    f.Request.Params,
		}
		if err := req.Validate(); err != nil {
			c.logger.Warnw("Dropping malformed session request", "error", err, "topic", f.Topic)
			continue
		}

		// One goroutine per request; requests on the same or different
		// topics proceed independently.
		go h(ctx, req)
	}
}

func (c *Client) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteTimeout))
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Warnw("Relay ping failed", "error", err)
				return
			}
		}
	}
}

// RespondSessionRequest publishes a JSON-RPC response to the request's topic.
func (c *Client) RespondSessionRequest(ctx context.Context, topic string, resp Response) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	if err := c.writeFrame(frame{Op: "publish", Topic: topic, Payload: payload}); err != nil {
		return fmt.Errorf("publish response to %s: %w", topic, err)
	}
	return nil
}

func (c *Client) writeFrame(f frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("relay client not connected")
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(f)
}

// Close tears down the connection. Safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// Package engine holds low-level WebSocket clients for the execution engine:
// the feed socket streaming fills and prices, and the control socket
// accepting abort commands.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/tradeforge/riskmon/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// ackWait bounds how long an abort command waits for the engine's reply.
	ackWait = 5 * time.Second
)

// FillHandler is called for every fill event received on the feed socket.
type FillHandler func(sessionID string, fill domain.Fill)

// PriceHandler is called for every price event received on the feed socket.
type PriceHandler func(sessionID string, price decimal.Decimal)

// DecodeErrorHandler is called when a feed message cannot be decoded.
type DecodeErrorHandler func(err error, raw []byte)

// FeedClient is a WebSocket client for the engine's feed socket. It manages
// one connection and dispatches decoded events to registered handlers; the
// caller owns the reconnect policy and dials a fresh client per attempt.
type FeedClient struct {
	wsURL     string
	authToken string

	mu     sync.RWMutex
	conn   *websocket.Conn
	closed bool

	onFill        FillHandler
	onPrice       PriceHandler
	onDecodeError DecodeErrorHandler
	handlerMu     sync.RWMutex

	// done is closed when the connection is gone, by Close or by a read
	// failure.
	done     chan struct{}
	doneOnce sync.Once
	readErr  error
}

// NewFeedClient creates a client for the engine feed endpoint. authToken, if
// non-empty, is sent as a bearer token on the handshake.
func NewFeedClient(wsURL, authToken string) *FeedClient {
	return &FeedClient{
		wsURL:     wsURL,
		authToken: authToken,
		done:      make(chan struct{}),
	}
}

// OnFill registers the handler for fill events. Must be called before Connect.
func (c *FeedClient) OnFill(handler FillHandler) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.onFill = handler
}

// OnPrice registers the handler for price events. Must be called before Connect.
func (c *FeedClient) OnPrice(handler PriceHandler) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.onPrice = handler
}

// OnDecodeError registers the handler for undecodable messages.
func (c *FeedClient) OnDecodeError(handler DecodeErrorHandler) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.onDecodeError = handler
}

// Connect establishes the WebSocket connection and starts the read and ping
// loops.
func (c *FeedClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("engine/feed: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	var header http.Header
	if c.authToken != "" {
		header = http.Header{"Authorization": []string{"Bearer " + c.authToken}}
	}

	conn, _, err := dialer.DialContext(ctx, c.wsURL, header)
	if err != nil {
		return fmt.Errorf("engine/feed: connect: %w", err)
	}
	c.conn = conn

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readLoop(conn)
	go c.pingLoop(conn)

	return nil
}

// Done is closed when the connection has terminated for any reason.
func (c *FeedClient) Done() <-chan struct{} {
	return c.done
}

// Err reports why the connection terminated; nil after a clean Close.
func (c *FeedClient) Err() error {
	select {
	case <-c.done:
		return c.readErr
	default:
		return nil
	}
}

// Close shuts down the connection and stops the read loop.
func (c *FeedClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.doneOnce.Do(func() { close(c.done) })

	if c.conn != nil {
		_ = c.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return c.conn.Close()
	}
	return nil
}

func (c *FeedClient) readLoop(conn *websocket.Conn) {
	defer conn.Close()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.readErr = fmt.Errorf("engine/feed: read: %w", err)
			}
			c.doneOnce.Do(func() { close(c.done) })
			return
		}

		c.handleMessage(message)
	}
}

func (c *FeedClient) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage decodes one feed message and routes it to the handler for
// its type.
func (c *FeedClient) handleMessage(raw []byte) {
	var ev FeedEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		c.decodeError(fmt.Errorf("engine/feed: decode: %w", err), raw)
		return
	}

	c.handlerMu.RLock()
	onFill, onPrice := c.onFill, c.onPrice
	c.handlerMu.RUnlock()

	switch ev.Type {
	case EventFill:
		fill, err := ev.Fill()
		if err != nil {
			c.decodeError(err, raw)
			return
		}
		if onFill != nil {
			onFill(ev.SessionID, fill)
		}
	case EventPrice:
		price, err := ev.PriceValue()
		if err != nil {
			c.decodeError(err, raw)
			return
		}
		if onPrice != nil {
			onPrice(ev.SessionID, price)
		}
	default:
		// Unknown event types are ignored so the engine can extend the feed.
	}
}

func (c *FeedClient) decodeError(err error, raw []byte) {
	c.handlerMu.RLock()
	handler := c.onDecodeError
	c.handlerMu.RUnlock()
	if handler != nil {
		handler(err, raw)
	}
}

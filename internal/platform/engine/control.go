package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ControlClient is a WebSocket client for the engine's control socket. Abort
// commands are synchronous request/reply exchanges; commands are serialized
// so replies cannot interleave. The client redials lazily, so a dropped
// connection is repaired on the next command.
type ControlClient struct {
	wsURL     string
	authToken string

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// NewControlClient creates a client for the engine control endpoint.
func NewControlClient(wsURL, authToken string) *ControlClient {
	return &ControlClient{
		wsURL:     wsURL,
		authToken: authToken,
	}
}

// Abort asks the engine to cancel all outstanding orders for the session and
// waits for the acknowledgement. Implements domain.AbortSink.
func (c *ControlClient) Abort(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("engine/control: client closed")
	}

	if err := c.dialLocked(ctx); err != nil {
		return err
	}

	cmd := ControlCommand{Op: OpAbort, SessionID: sessionID}
	ack, err := c.roundTripLocked(cmd)
	if err != nil {
		// Drop the connection; the next command redials.
		c.teardownLocked()
		return err
	}
	if ack.Op == OpError || ack.Error != "" {
		return fmt.Errorf("engine/control: abort %s rejected: %s", sessionID, ack.Error)
	}
	return nil
}

// Close shuts down the control connection.
func (c *ControlClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if c.conn != nil {
		_ = c.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// dialLocked establishes the connection if none is live. Caller holds c.mu.
func (c *ControlClient) dialLocked(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	var header http.Header
	if c.authToken != "" {
		header = http.Header{"Authorization": []string{"Bearer " + c.authToken}}
	}

	conn, _, err := dialer.DialContext(ctx, c.wsURL, header)
	if err != nil {
		return fmt.Errorf("engine/control: connect: %w", err)
	}
	c.conn = conn
	return nil
}

// roundTripLocked writes one command and reads its reply. Caller holds c.mu.
func (c *ControlClient) roundTripLocked(cmd ControlCommand) (ControlAck, error) {
	data, err := json.Marshal(cmd)
	if err != nil {
		return ControlAck{}, fmt.Errorf("engine/control: marshal: %w", err)
	}

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return ControlAck{}, fmt.Errorf("engine/control: write: %w", err)
	}

	c.conn.SetReadDeadline(time.Now().Add(ackWait))
	_, raw, err := c.conn.ReadMessage()
	if err != nil {
		return ControlAck{}, fmt.Errorf("engine/control: read ack: %w", err)
	}

	var ack ControlAck
	if err := json.Unmarshal(raw, &ack); err != nil {
		return ControlAck{}, fmt.Errorf("engine/control: decode ack: %w", err)
	}
	return ack, nil
}

func (c *ControlClient) teardownLocked() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

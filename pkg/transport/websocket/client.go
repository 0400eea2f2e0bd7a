// Package websocket implements the bidirectional message channel to the
// generation backend for the legacy socket-per-process flow.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/shintairiku/marketing-automation-sub003/pkg/events"
	"github.com/shintairiku/marketing-automation-sub003/pkg/models"
)

// Params scope a connection to one process and user via query parameters.
type Params struct {
	ProcessID string
	UserID    string
}

// Callbacks surface the connection lifecycle to the owner. All callbacks are
// invoked from the read goroutine or the calling goroutine; handlers must be
// quick and must not call back into the client under their own locks.
type Callbacks struct {
	OnOpen    func()
	OnMessage func(data []byte)
	OnError   func(err error)
	OnClose   func(code int, reason string)
}

// Client is the socket channel. Sends while disconnected are not errors to
// the caller: the failure is recorded and surfaced via LastError so UI code
// need not guard every send.
type Client struct {
	endpoint string
	logger   *slog.Logger
	cb       Callbacks

	mu         sync.Mutex
	conn       *websocket.Conn
	connected  bool
	connecting bool
	lastError  string
}

func NewClient(endpoint string, cb Callbacks, logger *slog.Logger) *Client {
	return &Client{
		endpoint: endpoint,
		cb:       cb,
		logger:   logger.With("module", "transport.websocket"),
	}
}

// Connect opens the channel. A second call while already connected or
// connecting is a no-op.
func (c *Client) Connect(ctx context.Context, params Params) error {
	c.mu.Lock()
	if c.connected || c.connecting {
		c.mu.Unlock()

		return nil
	}

	c.connecting = true
	c.lastError = ""
	c.mu.Unlock()

	target, err := c.buildURL(params)
	if err != nil {
		c.recordError(err)

		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		c.recordError(fmt.Errorf("dial %s: %w", c.endpoint, err))

		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.connecting = false
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "Connected to generation channel",
		"process_id", params.ProcessID)

	if c.cb.OnOpen != nil {
		c.cb.OnOpen()
	}

	go c.readPump()

	return nil
}

// SendMessage marshals and writes one message. A send while the channel is
// not open records an error string and returns without sending.
func (c *Client) SendMessage(msg any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected || c.conn == nil {
		c.lastError = "cannot send: connection is not open"

		return
	}

	if err := c.conn.WriteJSON(msg); err != nil {
		c.lastError = "send failed: " + err.Error()
	}
}

// StartGeneration sends the start envelope for a new generation run.
func (c *Client) StartGeneration(processID string, req models.StartGenerationRequest) {
	c.SendMessage(map[string]any{
		"type":       "start_generation",
		"process_id": processID,
		"payload":    req,
	})
}

// SendResponse sends one typed client response envelope.
func (c *Client) SendResponse(resp events.ClientResponse) {
	c.SendMessage(resp)
}

// Disconnect always sends a normal-closure signal; calling it when already
// disconnected is safe.
func (c *Client) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.connecting = false
	c.mu.Unlock()

	if conn == nil {
		return
	}

	message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect")
	_ = conn.WriteMessage(websocket.CloseMessage, message)
	_ = conn.Close()
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.connected
}

func (c *Client) IsConnecting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.connecting
}

// LastError returns the most recent recorded transport error, empty when the
// channel is healthy.
func (c *Client) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lastError
}

func (c *Client) buildURL(params Params) (string, error) {
	target, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}

	query := target.Query()
	if params.ProcessID != "" {
		query.Set("process_id", params.ProcessID)
	}

	if params.UserID != "" {
		query.Set("user_id", params.UserID)
	}

	target.RawQuery = query.Encode()

	return target.String(), nil
}

// readPump delivers inbound messages until the connection closes. A normal
// closure is a silent cancellation; an abnormal one records a descriptive
// error.
func (c *Client) readPump() {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(err)

			return
		}

		if c.cb.OnMessage != nil {
			c.cb.OnMessage(data)
		}
	}
}

func (c *Client) handleClose(err error) {
	code := websocket.CloseNormalClosure
	reason := ""

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		code = closeErr.Code
		reason = closeErr.Text
	}

	c.mu.Lock()
	wasConnected := c.connected
	c.connected = false
	c.conn = nil

	abnormal := closeErr == nil || code != websocket.CloseNormalClosure
	if wasConnected && abnormal {
		c.lastError = fmt.Sprintf("connection closed abnormally (code %d): %v", code, err)
	}
	c.mu.Unlock()

	if !wasConnected {
		// Disconnect already tore the channel down.
		return
	}

	if abnormal && c.cb.OnError != nil {
		c.cb.OnError(err)
	}

	if c.cb.OnClose != nil {
		c.cb.OnClose(code, reason)
	}
}

func (c *Client) recordError(err error) {
	c.mu.Lock()
	c.lastError = err.Error()
	c.connecting = false
	c.mu.Unlock()

	if c.cb.OnError != nil {
		c.cb.OnError(err)
	}
}

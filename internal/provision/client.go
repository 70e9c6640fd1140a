package provision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrorType represents the category of a client failure
type ErrorType int

const (
	// ErrTypeNetwork indicates the node could not be reached or the connection dropped
	ErrTypeNetwork ErrorType = iota
	// ErrTypeProtocol indicates the node answered with something other than a reply object
	ErrTypeProtocol
	// ErrTypeTimeout indicates the node did not answer in time
	ErrTypeTimeout
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeNetwork:
		return "Network Error"
	case ErrTypeProtocol:
		return "Protocol Error"
	case ErrTypeTimeout:
		return "Timeout"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// ClientError is returned by Client operations.
type ClientError struct {
	Type    ErrorType
	Message string
	Err     error
}

// Error implements error.
func (e *ClientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error.
func (e *ClientError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether repeating the operation may succeed.
func IsRetryable(err error) bool {
	var ce *ClientError
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Type == ErrTypeNetwork || ce.Type == ErrTypeTimeout
}

func classify(message string, err error) *ClientError {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &ClientError{Type: ErrTypeTimeout, Message: message, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ClientError{Type: ErrTypeTimeout, Message: message, Err: err}
	}
	return &ClientError{Type: ErrTypeNetwork, Message: message, Err: err}
}

// DefaultTimeout bounds a single request/reply exchange.
const DefaultTimeout = 10 * time.Second

// Client talks to a node's provisioning channel.
type Client struct {
	conn    *websocket.Conn
	mu      sync.Mutex
	Timeout time.Duration
}

// URLFor builds the endpoint URL of a node at host:port.
func URLFor(host string, port int) string {
	return "ws://" + net.JoinHostPort(host, strconv.Itoa(port)) + DefaultPath
}

// Dial connects to the provisioning endpoint at url.
func Dial(ctx context.Context, url string) (*Client, error) {
	dialer := websocket.Dialer{HandshakeTimeout: DefaultTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, classify("failed to connect to "+url, err)
	}
	return &Client{conn: conn, Timeout: DefaultTimeout}, nil
}

// Send delivers a request and returns the node's acknowledgement.
func (c *Client) Send(ctx context.Context, req Request) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := time.Now().Add(c.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	data, err := json.Marshal(req)
	if err != nil {
		return "", &ClientError{Type: ErrTypeProtocol, Message: "failed to encode request", Err: err}
	}

	_ = c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return "", classify("failed to send request", err)
	}

	_ = c.conn.SetReadDeadline(deadline)
	_, raw, err := c.conn.ReadMessage()
	if err != nil {
		return "", classify("failed to read reply", err)
	}

	var reply replyMessage
	if err := json.Unmarshal(raw, &reply); err != nil {
		return "", &ClientError{Type: ErrTypeProtocol, Message: "malformed reply", Err: err}
	}
	return reply.Reply, nil
}

// SaveCredentials sends station credentials.
func (c *Client) SaveCredentials(ctx context.Context, ssid, password string) (string, error) {
	return c.Send(ctx, Request{PropertySSID: ssid, PropertyPassword: password})
}

// Restart asks the node to restart.
func (c *Client) Restart(ctx context.Context) (string, error) {
	return c.Send(ctx, Request{PropertyRestart: "true"})
}

// Close closes the connection with a normal closure frame.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return c.conn.Close()
}

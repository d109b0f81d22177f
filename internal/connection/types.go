package connection

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no traffic)")
	ErrTimeout         = errors.New("operation timeout")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrPingFailed      = errors.New("heartbeat failures exceeded limit")
)

// HandshakeError is a failed WebSocket upgrade with an HTTP status, most
// importantly a 429 carrying Retry-After.
type HandshakeError struct {
	StatusCode int
	RetryAfter time.Duration
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("websocket handshake rejected: status %d", e.StatusCode)
}

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// ClientConfig configures a raw WebSocket client.
type ClientConfig struct {
	URL              string        // WebSocket URL
	Proxy            string        // Optional HTTP proxy URL, tunneled via CONNECT
	Header           http.Header   // Extra handshake headers
	HandshakeTimeout time.Duration // Dial deadline
	WriteTimeout     time.Duration // Write deadline for sends
	StaleTimeout     time.Duration // Max time without any inbound traffic; 0 disables
	BufferSize       int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		StaleTimeout:     90 * time.Second,
		BufferSize:       4096,
	}
}

// ConnConfig configures a managed connection.
type ConnConfig struct {
	Client            ClientConfig
	ReconnectBaseWait time.Duration // First reconnect backoff step
	ReconnectMaxWait  time.Duration // Backoff ceiling
	SendWaitTimeout   time.Duration // How long Send blocks waiting for a reconnect
	RequestTimeout    time.Duration // Default deadline for Request
	PingFailLimit     int           // Consecutive heartbeat failures before forcing a reconnect
	ConnectAttempts   int           // Max initial-dial attempts while rate limited
}

// DefaultConnConfig returns sensible defaults.
func DefaultConnConfig() ConnConfig {
	return ConnConfig{
		Client:            DefaultClientConfig(),
		ReconnectBaseWait: time.Second,
		ReconnectMaxWait:  60 * time.Second,
		SendWaitTimeout:   10 * time.Second,
		RequestTimeout:    10 * time.Second,
		PingFailLimit:     2,
		ConnectAttempts:   5,
	}
}

// Package connection turns a net.Conn into a structured message channel.
// Sends are serialized with one mutex and receives with another, so one
// goroutine may send while another blocks in Receive.
package connection

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyberinferno/tcpchat/message"
)

// ErrClosed is wrapped by the TransportError returned from Send or Receive
// after Close.
var ErrClosed = errors.New("connection: closed")

// TransportError reports a failure of the underlying stream.
type TransportError struct {
	Op  string // "send", "receive" or "dial"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("connection: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Option configures a Connection.
type Option func(c *Connection)

// WithWriteTimeout bounds each Send; zero means no deadline.
func WithWriteTimeout(timeout time.Duration) Option {
	return func(c *Connection) {
		c.writeTimeout = timeout
	}
}

// Connection is a full-duplex message channel over one net.Conn. It owns the
// stream and closes it exactly once.
type Connection struct {
	conn   net.Conn
	reader *bufio.Reader

	sendMu sync.Mutex
	recvMu sync.Mutex

	writeTimeout time.Duration

	closed    atomic.Bool
	closeOnce sync.Once
}

// New wraps conn. The returned Connection takes ownership of conn.
//
// Parameters:
//   - conn: The accepted or dialed stream
//   - opts: Optional settings such as WithWriteTimeout
//
// Returns:
//   - A Connection ready for Send and Receive
func New(conn net.Conn, opts ...Option) *Connection {
	c := &Connection{
		conn:   conn,
		reader: bufio.NewReader(conn),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Dial connects to a TCP address and wraps the stream.
//
// Parameters:
//   - ctx: Cancels the dial attempt
//   - address: "host:port" to connect to
//   - timeout: Maximum time for establishing the connection; zero means none
//   - opts: Options applied to the new Connection
//
// Returns:
//   - The Connection, or a *TransportError if dialing fails
func Dial(ctx context.Context, address string, timeout time.Duration, opts ...Option) (*Connection, error) {
	dialer := net.Dialer{Timeout: timeout}

	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, &TransportError{Op: "dial", Err: err}
	}

	return New(conn, opts...), nil
}

// Send writes one message frame. Concurrent calls are serialized, so frames
// never interleave.
//
// Parameters:
//   - m: The message to send
//
// Returns:
//   - An encode error, a *TransportError, or nil
func (c *Connection) Send(m message.Message) error {
	frame, err := message.Encode(m)
	if err != nil {
		return err
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed.Load() {
		return &TransportError{Op: "send", Err: ErrClosed}
	}

	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return &TransportError{Op: "send", Err: err}
		}
	}

	if n, err := c.conn.Write(frame); err != nil {
		err = c.mapClosed(err)
		if n > 0 {
			// The peer can no longer find frame boundaries.
			_ = c.Close()
		}

		return &TransportError{Op: "send", Err: err}
	}

	return nil
}

// Receive blocks until the next message arrives. Concurrent calls are
// serialized.
//
// Returns:
//   - The next Message
//   - A *TransportError on stream failure or closure (wrapping io.EOF when
//     the peer closed cleanly), or an error matching message.ErrDecode
func (c *Connection) Receive() (message.Message, error) {
	c.recvMu.Lock()
	defer c.recvMu.Unlock()

	if c.closed.Load() {
		return message.Message{}, &TransportError{Op: "receive", Err: ErrClosed}
	}

	body, err := message.ReadFrame(c.reader)
	if err != nil {
		if errors.Is(err, message.ErrDecode) {
			return message.Message{}, err
		}

		return message.Message{}, &TransportError{Op: "receive", Err: c.mapClosed(err)}
	}

	return message.Decode(body)
}

// SetReadDeadline sets the deadline for pending and future Receive calls.
// A zero value clears it.
func (c *Connection) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// RemoteAddr returns the peer address.
func (c *Connection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Close releases the stream. Only the first call closes it and reports the
// stream's close error; later calls return nil.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		err = c.conn.Close()
	})

	return err
}

// Closed reports whether Close has been called.
func (c *Connection) Closed() bool {
	return c.closed.Load()
}

// mapClosed replaces the stream error with ErrClosed when the failure was
// caused by a local Close.
func (c *Connection) mapClosed(err error) error {
	if c.closed.Load() {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}

	return err
}

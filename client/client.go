// Package client implements the chat client: it dials the server, answers
// the username handshake, then receives chat events in a background loop
// while the caller sends text. Connectivity changes are reported through a
// one-shot connection signal and optional state-change handlers.
package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cyberinferno/tcpchat/connection"
	"github.com/cyberinferno/tcpchat/logger"
	"github.com/cyberinferno/tcpchat/message"
)

// ExitCommand is the input line that ends Run.
const ExitCommand = "exit"

var (
	// ErrConnectionLost wraps every failure that ended the session from the
	// network side.
	ErrConnectionLost = errors.New("client: connection lost")

	// ErrUnexpectedMessage marks a message the client cannot handle in its
	// current phase.
	ErrUnexpectedMessage = errors.New("client: unexpected message")

	// ErrNotConnected is returned by SendText before the handshake completes
	// or after the connection ended.
	ErrNotConnected = errors.New("client: not connected")

	// ErrClosed resolves the connection signal when Close wins the race
	// against the handshake.
	ErrClosed = errors.New("client: closed")

	// ErrAlreadyStarted is returned when Start or Run is called twice.
	ErrAlreadyStarted = errors.New("client: already started")
)

// ConnectionState represents the current state of the chat connection.
type ConnectionState int

const (
	Disconnected ConnectionState = iota // Not started
	Connecting                          // Dialing the server
	Handshaking                         // Negotiating the username
	Connected                           // Name accepted, chat running
	Lost                                // Ended by a network or protocol failure
	Closed                              // Ended locally
)

// String returns a human-readable name for the connection state.
func (cs ConnectionState) String() string {
	switch cs {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Handshaking:
		return "Handshaking"
	case Connected:
		return "Connected"
	case Lost:
		return "Lost"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// ConnectionStateEvent is emitted when the connection state changes.
type ConnectionStateEvent struct {
	State     ConnectionState // The new connection state
	Address   string          // The server address
	Timestamp time.Time       // When the state change occurred
	Error     error           // Non-nil if the change was caused by a failure
}

// ConnectionStateHandler is called synchronously on every state change,
// from whichever goroutine caused it.
type ConnectionStateHandler func(event ConnectionStateEvent)

// NameFunc supplies a username each time the server asks for one.
type NameFunc func(ctx context.Context) (string, error)

// View displays incoming chat events. Methods are called from the
// background receive goroutine, in arrival order.
type View interface {
	ShowText(text string)
	ShowUserAdded(name string)
	ShowUserRemoved(name string)
}

// Config holds configuration for the chat client.
type Config struct {
	// Address is the "host:port" of the chat server.
	Address string
	// ConnectionTimeout is the max duration for establishing the TCP connection.
	ConnectionTimeout time.Duration
	// WriteTimeout is the max duration for a single send; 0 means no timeout.
	WriteTimeout time.Duration
}

// DefaultConfig returns a Config with default timeouts for address.
//
// Parameters:
//   - address: The "host:port" to connect to
//
// Returns:
//   - A Config with ConnectionTimeout 10s and WriteTimeout 10s
func DefaultConfig(address string) Config {
	return Config{
		Address:           address,
		ConnectionTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// Client is a single chat session seen from the user's side. It is safe
// for concurrent use; a Client runs once and cannot be restarted.
type Client struct {
	config  Config
	askName NameFunc
	view    View
	logger  logger.Logger
	roster  *Roster

	mu      sync.RWMutex
	state   ConnectionState
	conn    *connection.Connection
	onState ConnectionStateHandler
	started bool

	closing atomic.Bool

	ready     chan struct{}
	readyOnce sync.Once
	readyErr  error

	done chan struct{}
}

// New creates a client in Disconnected state.
//
// Parameters:
//   - cfg: Server address and timeouts
//   - askName: Called on every NAME_REQUEST to obtain a username
//   - view: Receives chat events
//   - log: Diagnostics logger; nil discards them
//
// Returns:
//   - A new *Client; call Start or Run to connect
func New(cfg Config, askName NameFunc, view View, log logger.Logger) *Client {
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Client{
		config:  cfg,
		askName: askName,
		view:    view,
		logger:  log.With(logger.Field{Key: "server", Value: cfg.Address}),
		roster:  NewRoster(),
		state:   Disconnected,
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// OnConnectionState registers the handler for connection state changes.
// Repeated calls replace the previous handler; nil clears it.
func (c *Client) OnConnectionState(handler ConnectionStateHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = handler
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsConnected reports whether the handshake completed and the session is live.
func (c *Client) IsConnected() bool {
	return c.State() == Connected
}

// Roster returns the local view of online users.
func (c *Client) Roster() *Roster {
	return c.roster
}

// Done is closed when the background loop has exited.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Start dials the server and runs the handshake and receive loop in a
// background goroutine. Use AwaitConnection to wait for the outcome.
//
// Parameters:
//   - ctx: Cancelling it closes the client
//
// Returns:
//   - ErrAlreadyStarted if the client was started before
func (c *Client) Start(ctx context.Context) error {
	if err := c.begin(); err != nil {
		return err
	}

	go func() {
		_ = c.serve(ctx)
	}()

	return nil
}

// AwaitConnection blocks until the handshake succeeded or the session
// failed, whichever comes first.
//
// Parameters:
//   - ctx: Bounds the wait
//
// Returns:
//   - nil once the username was accepted
//   - The failure (wrapping ErrConnectionLost or ErrClosed), or ctx.Err()
func (c *Client) AwaitConnection(ctx context.Context) error {
	select {
	case <-c.ready:
		return c.readyErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run connects and then forwards each line from lines as a TEXT message
// until the user types ExitCommand, lines is closed, ctx is cancelled or
// the connection is lost. The background receive loop and the foreground
// input loop run as one errgroup.
//
// Parameters:
//   - ctx: Cancelling it ends both loops
//   - lines: User input, one message per line
//
// Returns:
//   - nil on a local exit, or an error wrapping ErrConnectionLost
func (c *Client) Run(ctx context.Context, lines <-chan string) error {
	if err := c.begin(); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.serve(ctx)
	})
	g.Go(func() error {
		defer c.Close()

		if err := c.AwaitConnection(ctx); err != nil {
			// The background loop reports its own failure.
			return nil
		}

		return c.forward(ctx, lines)
	})

	return g.Wait()
}

// SendText sends one chat line to the server.
//
// Parameters:
//   - text: The message text
//
// Returns:
//   - ErrNotConnected before the handshake completes, or the send error
func (c *Client) SendText(text string) error {
	c.mu.RLock()
	conn, state := c.conn, c.state
	c.mu.RUnlock()

	if state != Connected || conn == nil {
		return ErrNotConnected
	}

	return conn.Send(message.WithData(message.Text, text))
}

// Close ends the session locally. It is idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closing.Swap(true) {
		c.mu.Unlock()
		return nil
	}

	conn := c.conn
	neverStarted := !c.started
	c.started = true
	c.mu.Unlock()

	if neverStarted {
		c.resolve(ErrClosed)
		close(c.done)
		c.setState(Closed, nil)
		return nil
	}

	if conn != nil {
		return conn.Close()
	}

	return nil
}

func (c *Client) begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return ErrAlreadyStarted
	}

	c.started = true
	return nil
}

func (c *Client) forward(ctx context.Context, lines <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.done:
			return nil
		case line, ok := <-lines:
			if !ok || strings.TrimSpace(line) == ExitCommand {
				return nil
			}

			if err := c.SendText(line); err != nil {
				return fmt.Errorf("%w: %w", ErrConnectionLost, err)
			}
		}
	}
}

// serve runs the whole background session and classifies how it ended.
func (c *Client) serve(ctx context.Context) error {
	defer close(c.done)

	go func() {
		select {
		case <-ctx.Done():
			_ = c.Close()
		case <-c.done:
		}
	}()

	err := c.session(ctx)

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn != nil {
		_ = conn.Close()
	}

	if c.closing.Load() {
		c.resolve(ErrClosed)
		c.setState(Closed, nil)
		c.logger.Debug("client closed")
		return nil
	}

	err = fmt.Errorf("%w: %w", ErrConnectionLost, err)
	c.resolve(err)
	c.setState(Lost, err)
	c.logger.Warn("connection lost", logger.Field{Key: "error", Value: err.Error()})
	return err
}

func (c *Client) session(ctx context.Context) error {
	c.setState(Connecting, nil)

	conn, err := connection.Dial(ctx, c.config.Address, c.config.ConnectionTimeout,
		connection.WithWriteTimeout(c.config.WriteTimeout))
	if err != nil {
		return err
	}

	if !c.attach(conn) {
		_ = conn.Close()
		return ErrClosed
	}

	c.setState(Handshaking, nil)
	if err := c.handshake(ctx, conn); err != nil {
		return err
	}

	c.setState(Connected, nil)
	c.resolve(nil)
	c.logger.Info("connection established")

	return c.receiveLoop(conn)
}

// attach publishes conn unless Close already ran.
func (c *Client) attach(conn *connection.Connection) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closing.Load() {
		return false
	}

	c.conn = conn
	return true
}

func (c *Client) handshake(ctx context.Context, conn *connection.Connection) error {
	for {
		m, err := conn.Receive()
		if err != nil {
			return err
		}

		switch m.Type() {
		case message.NameRequest:
			name, err := c.askName(ctx)
			if err != nil {
				return fmt.Errorf("read username: %w", err)
			}

			if err := conn.Send(message.WithData(message.UserName, name)); err != nil {
				return err
			}
		case message.NameAccepted:
			return nil
		default:
			return fmt.Errorf("%w during handshake: %s", ErrUnexpectedMessage, m.Type())
		}
	}
}

func (c *Client) receiveLoop(conn *connection.Connection) error {
	for {
		m, err := conn.Receive()
		if err != nil {
			return err
		}

		switch m.Type() {
		case message.Text:
			c.view.ShowText(m.Data())
		case message.UserAdded:
			c.roster.Add(m.Data())
			c.view.ShowUserAdded(m.Data())
		case message.UserRemoved:
			c.roster.Remove(m.Data())
			c.view.ShowUserRemoved(m.Data())
		default:
			return fmt.Errorf("%w: %s", ErrUnexpectedMessage, m.Type())
		}
	}
}

// resolve fires the connection signal; only the first call has an effect.
func (c *Client) resolve(err error) {
	c.readyOnce.Do(func() {
		c.readyErr = err
		close(c.ready)
	})
}

func (c *Client) setState(state ConnectionState, err error) {
	c.mu.Lock()
	c.state = state
	handler := c.onState
	c.mu.Unlock()

	if handler != nil {
		handler(ConnectionStateEvent{
			State:     state,
			Address:   c.config.Address,
			Timestamp: time.Now(),
			Error:     err,
		})
	}
}

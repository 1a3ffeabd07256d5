package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyberinferno/tcpchat/connection"
	"github.com/cyberinferno/tcpchat/logger"
	"github.com/cyberinferno/tcpchat/message"
	"github.com/cyberinferno/tcpchat/presence"
	"github.com/cyberinferno/tcpchat/registry"
)

const presenceTimeout = 2 * time.Second

var (
	// ErrProtocolViolation marks a well-formed message that is not valid
	// in the session's current state.
	ErrProtocolViolation = errors.New("server: protocol violation")

	// ErrTooManyAttempts ends a handshake that exceeded Config.MaxNameAttempts.
	ErrTooManyAttempts = errors.New("server: too many name attempts")
)

// State is a session's position in its lifecycle.
type State int32

const (
	Connected   State = iota // accepted, nothing exchanged yet
	Handshaking              // negotiating a username
	Registered               // username owned, roster not yet sent
	Relaying                 // relaying TEXT messages
	Terminated               // connection closed, name released
)

// String returns a human-readable name for the state.
func (st State) String() string {
	switch st {
	case Connected:
		return "Connected"
	case Handshaking:
		return "Handshaking"
	case Registered:
		return "Registered"
	case Relaying:
		return "Relaying"
	case Terminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// Session serves one client connection: handshake, roster sync, then the
// relay loop. The session exclusively owns its connection; only its own
// Handle goroutine registers and releases its username.
type Session struct {
	id       uint32
	conn     *connection.Connection
	config   Config
	registry *registry.Registry
	presence presence.Store
	logger   logger.Logger

	state atomic.Int32

	mu       sync.RWMutex
	username string

	terminate sync.Once
}

func newSession(
	id uint32,
	conn *connection.Connection,
	cfg Config,
	reg *registry.Registry,
	store presence.Store,
	log logger.Logger,
) *Session {
	return &Session{
		id:       id,
		conn:     conn,
		config:   cfg,
		registry: reg,
		presence: store,
		logger: log.With(
			logger.Field{Key: "session_id", Value: id},
			logger.Field{Key: "remote_addr", Value: conn.RemoteAddr().String()},
		),
	}
}

// ID returns the server-assigned session id.
func (s *Session) ID() uint32 {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Username returns the registered username, or "" before registration.
func (s *Session) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username
}

// Close closes the connection, which makes Handle run its termination
// sequence. Safe to call multiple times and from any goroutine.
func (s *Session) Close() error {
	return s.conn.Close()
}

// Handle runs the session to completion. Termination runs exactly once,
// whichever step failed.
func (s *Session) Handle() {
	s.logger.Info("new connection established")
	defer s.finish()

	name, err := s.handshake()
	if err != nil {
		s.logExchangeError("handshake ended", err)
		return
	}

	if err := s.announce(name); err != nil {
		s.logExchangeError("roster sync failed", err)
		return
	}

	s.setState(Relaying)
	s.logExchangeError("relay ended", s.relay(name))
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

func (s *Session) handshake() (string, error) {
	s.setState(Handshaking)

	if s.config.HandshakeTimeout > 0 {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.config.HandshakeTimeout)); err != nil {
			return "", err
		}

		defer func() {
			_ = s.conn.SetReadDeadline(time.Time{})
		}()
	}

	for attempt := 1; ; attempt++ {
		if s.config.MaxNameAttempts > 0 && attempt > s.config.MaxNameAttempts {
			return "", fmt.Errorf("%w: %d", ErrTooManyAttempts, s.config.MaxNameAttempts)
		}

		if err := s.conn.Send(message.New(message.NameRequest)); err != nil {
			return "", err
		}

		reply, err := s.conn.Receive()
		if err != nil {
			return "", err
		}

		if reply.Type() != message.UserName {
			s.logger.Debug("unexpected message during handshake",
				logger.Field{Key: "type", Value: reply.Type().String()},
				logger.Field{Key: "attempt", Value: attempt},
			)
			continue
		}

		name := reply.Data()
		if !s.registry.TryRegister(name, s.conn) {
			s.logger.Debug("username rejected",
				logger.Field{Key: "user", Value: name},
				logger.Field{Key: "attempt", Value: attempt},
			)
			continue
		}

		s.mu.Lock()
		s.username = name
		s.mu.Unlock()
		s.setState(Registered)
		s.logger = s.logger.With(logger.Field{Key: "user", Value: name})

		if err := s.conn.Send(message.New(message.NameAccepted)); err != nil {
			return "", err
		}

		return name, nil
	}
}

// announce tells everyone about the new user, then tells the new user
// about everyone else.
func (s *Session) announce(name string) error {
	s.markOnline(name)

	_ = s.registry.Broadcast(message.WithData(message.UserAdded, name))

	for _, e := range s.registry.Snapshot() {
		if e.Name == name {
			continue
		}

		if err := s.conn.Send(message.WithData(message.UserAdded, e.Name)); err != nil {
			return err
		}
	}

	s.logger.Info("user joined", logger.Field{Key: "online", Value: s.registry.Len()})
	return nil
}

func (s *Session) relay(name string) error {
	for {
		m, err := s.conn.Receive()
		if err != nil {
			return err
		}

		if m.Type() != message.Text {
			s.logger.Warn("message is not text",
				logger.Field{Key: "type", Value: m.Type().String()},
				logger.Field{Key: "error", Value: ErrProtocolViolation.Error()},
			)
			continue
		}

		_ = s.registry.Broadcast(message.WithData(message.Text, name+": "+m.Data()))
	}
}

func (s *Session) finish() {
	s.terminate.Do(func() {
		if name := s.Username(); name != "" {
			if s.registry.Release(name, s.conn) {
				_ = s.registry.Broadcast(message.WithData(message.UserRemoved, name))
			}

			s.markOffline(name)
			s.logger.Info("user left")
		}

		_ = s.conn.Close()
		s.setState(Terminated)
		s.logger.Info("connection with remote address closed")
	})
}

func (s *Session) markOnline(name string) {
	if s.presence == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()

	seen, found, err := s.presence.LastSeen(ctx, name)
	if err != nil {
		s.logger.Warn("presence lookup failed", logger.Field{Key: "error", Value: err.Error()})
	} else if found {
		s.logger.Info("returning user", logger.Field{Key: "last_seen", Value: seen.Format(time.RFC3339)})
	}

	if err := s.presence.MarkOnline(ctx, name); err != nil {
		s.logger.Warn("presence update failed", logger.Field{Key: "error", Value: err.Error()})
	}
}

func (s *Session) markOffline(name string) {
	if s.presence == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()

	if err := s.presence.MarkOffline(ctx, name); err != nil {
		s.logger.Warn("presence update failed", logger.Field{Key: "error", Value: err.Error()})
	}
}

func (s *Session) logExchangeError(msg string, err error) {
	fields := []logger.Field{{Key: "error", Value: err.Error()}, {Key: "state", Value: s.State().String()}}

	switch {
	case errors.Is(err, io.EOF), errors.Is(err, connection.ErrClosed):
		s.logger.Info(msg, fields...)
	case errors.Is(err, message.ErrDecode):
		s.logger.Warn(msg+": malformed data", fields...)
	case errors.Is(err, ErrTooManyAttempts), errors.Is(err, os.ErrDeadlineExceeded):
		s.logger.Warn(msg+": handshake abandoned", fields...)
	default:
		s.logger.Error("error exchanging data with remote address", append(fields, logger.Field{Key: "phase", Value: msg})...)
	}
}

// Package server implements the chat server: a TCP accept loop that runs
// one Session per connection against a shared registry of online users.
package server

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyberinferno/tcpchat/connection"
	"github.com/cyberinferno/tcpchat/logger"
	"github.com/cyberinferno/tcpchat/presence"
	"github.com/cyberinferno/tcpchat/registry"
)

// Config holds the server's listening address and session limits.
type Config struct {
	// Addr is the "host:port" to listen on (e.g. ":9000").
	Addr string
	// HandshakeTimeout bounds the whole name negotiation; 0 means unbounded.
	HandshakeTimeout time.Duration
	// MaxNameAttempts bounds the number of NAME_REQUEST rounds; 0 means unbounded.
	MaxNameAttempts int
	// WriteTimeout bounds every send to a client; 0 means no deadline.
	WriteTimeout time.Duration
}

// DefaultConfig returns a Config for addr with the permissive defaults:
// no handshake bound and no write deadline.
func DefaultConfig(addr string) Config {
	return Config{Addr: addr}
}

// Option customizes a Server.
type Option func(s *Server)

// WithRegistry makes the server use r instead of a fresh registry.
func WithRegistry(r *registry.Registry) Option {
	return func(s *Server) {
		s.registry = r
	}
}

// WithPresence attaches a presence store updated on every join and leave.
func WithPresence(p presence.Store) Option {
	return func(s *Server) {
		s.presence = p
	}
}

// Server accepts TCP connections and hands each to a Session. It is safe to
// call Stop from any goroutine.
type Server struct {
	config   Config
	logger   logger.Logger
	registry *registry.Registry
	presence presence.Store

	mu       sync.Mutex
	listener net.Listener
	running  atomic.Bool

	sessions sync.Map // uint32 -> *Session
	nextID   atomic.Uint32
	wg       sync.WaitGroup
}

// New creates a Server. It does not start listening.
//
// Parameters:
//   - cfg: Listen address and session limits
//   - log: Logger for server and session events; nil discards them
//   - opts: Optional registry and presence overrides
//
// Returns:
//   - A new *Server
func New(cfg Config, log logger.Logger, opts ...Option) *Server {
	if log == nil {
		log = logger.NewNopLogger()
	}

	s := &Server{
		config: cfg,
		logger: log,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.registry == nil {
		s.registry = registry.New(log)
	}

	return s
}

// Registry returns the registry of online users.
func (s *Server) Registry() *registry.Registry {
	return s.registry
}

// Start binds to Config.Addr and runs the accept loop in a goroutine.
//
// Returns:
//   - An error if the server is already running or listening fails
func (s *Server) Start() error {
	if s.running.Load() {
		return errors.New("server already running")
	}

	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		s.logger.Error("server failed to start", logger.Field{Key: "error", Value: err.Error()})
		return fmt.Errorf("server failed to start: %w", err)
	}

	if err := s.bind(ln); err != nil {
		_ = ln.Close()
		return err
	}

	go s.acceptLoop(ln)
	return nil
}

// Serve runs the accept loop on ln until Stop is called. It blocks.
//
// Parameters:
//   - ln: An open listener; the server closes it on Stop
//
// Returns:
//   - An error if the server is already running
func (s *Server) Serve(ln net.Listener) error {
	if err := s.bind(ln); err != nil {
		return err
	}

	s.acceptLoop(ln)
	return nil
}

func (s *Server) bind(ln net.Listener) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.CompareAndSwap(false, true) {
		return errors.New("server already running")
	}

	s.listener = ln
	s.logger.Info("chat server started", logger.Field{Key: "addr", Value: ln.Addr().String()})
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}

	return s.listener.Addr()
}

// Stop closes the listener and every live session, then waits for all
// session handlers to finish. Safe to call when not running.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.running.CompareAndSwap(true, false) {
		s.mu.Unlock()
		return
	}

	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.mu.Unlock()

	s.sessions.Range(func(_, v any) bool {
		_ = v.(*Session).Close()
		return true
	})

	s.wg.Wait()
	s.logger.Info("chat server stopped")
}

// SessionCount returns the number of live sessions, registered or not.
func (s *Server) SessionCount() int {
	n := 0
	s.sessions.Range(func(_, _ any) bool {
		n++
		return true
	})

	return n
}

func (s *Server) acceptLoop(ln net.Listener) {
	for s.running.Load() {
		conn, err := ln.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return
			}

			s.logger.Error("accept error", logger.Field{Key: "error", Value: err.Error()})
			continue
		}

		s.spawn(conn)
	}
}

func (s *Server) spawn(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		_ = conn.Close()
		return
	}

	id := s.nextID.Add(1)
	c := connection.New(conn, connection.WithWriteTimeout(s.config.WriteTimeout))
	session := newSession(id, c, s.config, s.registry, s.presence, s.logger)

	s.sessions.Store(id, session)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.sessions.Delete(id)
		session.Handle()
	}()
}

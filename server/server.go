// Package server implements a stand-in printer that speaks the status
// protocol. Tests run it in-process; cmd/form2sim runs it standalone.
//
// Request processing pipeline:
//
//	Accept conn → handleConn (reads one frame at a time)
//	  → Codec.Decode → handler lookup by Method → Codec.Encode → write response frame
//
// The printer answers requests on a connection strictly in order, so
// handleConn processes each request before reading the next one.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"form2idle/codec"
	"form2idle/message"
	"form2idle/protocol"
	"form2idle/registry"
)

// HandlerFunc answers one request. The returned map becomes the response
// Parameters; an error turns into Success=false.
type HandlerFunc func(ctx context.Context, req *message.Request) (map[string]any, error)

// Server accepts connections and answers requests with registered handlers.
type Server struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc // "PROTOCOL_METHOD_GET_STATUS" → handler
	conns    map[net.Conn]struct{}  // Open client connections, closed on shutdown

	listener net.Listener
	wg       sync.WaitGroup // Tracks connection handlers for graceful shutdown
	shutdown atomic.Bool    // Set during shutdown to suppress Accept errors

	codec  codec.Codec
	logger *zap.Logger

	registry        registry.Registry // nil unless the server advertises itself
	registryTimeout time.Duration     // Bounds Register in Serve
	printerName     string
	advertiseAddr   string
}

// DefaultRegistryTimeout bounds self-registration when no other limit is set.
const DefaultRegistryTimeout = 5 * time.Second

type Option func(*Server)

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithCodec(c codec.Codec) Option {
	return func(s *Server) { s.codec = c }
}

// WithRegistry makes Serve register the server under name at advertiseAddr,
// and Shutdown remove it again. advertiseAddr differs from the listen
// address because ":35" is not routable for other hosts.
func WithRegistry(reg registry.Registry, name, advertiseAddr string) Option {
	return func(s *Server) {
		s.registry = reg
		s.printerName = name
		s.advertiseAddr = advertiseAddr
	}
}

// WithRegistryTimeout bounds the registry call made by Serve. Values <= 0
// keep DefaultRegistryTimeout.
func WithRegistryTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.registryTimeout = d
		}
	}
}

func NewServer(opts ...Option) *Server {
	s := &Server{
		handlers: make(map[string]HandlerFunc),
		conns:    make(map[net.Conn]struct{}),
		codec:    codec.Default(),
		logger:   zap.NewNop(),

		registryTimeout: DefaultRegistryTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle registers h for method, replacing any previous handler.
func (s *Server) Handle(method string, h HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = h
}

// Listen binds the listener without serving yet, so callers can read Addr
// (useful with port 0).
func (s *Server) Listen(network, address string) error {
	listener, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ListenAndServe is Listen followed by Serve.
func (s *Server) ListenAndServe(network, address string) error {
	if err := s.Listen(network, address); err != nil {
		return err
	}
	return s.Serve()
}

// Serve optionally registers with the registry, then runs the Accept loop
// until Shutdown. Listen must have been called.
func (s *Server) Serve() error {
	s.mu.RLock()
	listener := s.listener
	s.mu.RUnlock()
	if listener == nil {
		return errors.New("server: Serve called before Listen")
	}

	if s.registry != nil {
		inst := registry.PrinterInstance{Addr: s.advertiseAddr, Weight: 1, Model: "Form 2 (simulated)"}
		ctx, cancel := context.WithTimeout(context.Background(), s.registryTimeout)
		err := s.registry.Register(ctx, s.printerName, inst, 10)
		cancel()
		if err != nil {
			return fmt.Errorf("server: register: %w", err)
		}
	}
	s.logger.Info("serving", zap.Stringer("addr", listener.Addr()))

	// Accept loop: one goroutine per connection
	for {
		conn, err := listener.Accept()
		if err != nil {
			// Shutdown closes the listener; that error is expected
			if s.shutdown.Load() {
				return nil
			}
			return err
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

func (s *Server) trackConn(conn net.Conn, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		if s.shutdown.Load() {
			return false
		}
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
	return true
}

// handleConn reads request frames sequentially and answers each in turn.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	if !s.trackConn(conn, true) {
		return
	}
	defer s.trackConn(conn, false)

	logger := s.logger.With(zap.Stringer("remote", conn.RemoteAddr()))
	logger.Debug("client connected")

	for {
		payload, err := protocol.Decode(conn)
		if err != nil {
			if !errors.Is(err, protocol.ErrConnectionClosed) && !s.shutdown.Load() {
				logger.Warn("read request failed", zap.Error(err))
			}
			return
		}

		var req message.Request
		if err := s.codec.Decode(payload, &req); err != nil {
			// Without a request id there is nothing to answer to
			logger.Warn("dropping connection on malformed request", zap.Error(err))
			return
		}

		if err := s.handleRequest(conn, &req, logger); err != nil {
			logger.Warn("write response failed", zap.Error(err))
			return
		}
	}
}

// handleRequest runs the handler and writes the response frame.
func (s *Server) handleRequest(conn net.Conn, req *message.Request, logger *zap.Logger) error {
	resp := s.dispatch(req, logger)

	body, err := s.codec.Encode(resp)
	if err != nil {
		return err
	}
	return protocol.Encode(conn, body)
}

func (s *Server) dispatch(req *message.Request, logger *zap.Logger) *message.Response {
	// Echo the request id so the client can correlate
	resp := &message.Response{
		ID:            req.ID,
		Parameters:    map[string]any{},
		ReplyToMethod: req.Method,
		Version:       message.ProtocolVersion,
	}

	s.mu.RLock()
	h := s.handlers[req.Method]
	s.mu.RUnlock()
	if h == nil {
		logger.Info("unknown method", zap.String("method", req.Method))
		return resp
	}

	start := time.Now()
	params, err := h(context.Background(), req)
	logger.Debug("handled request",
		zap.String("method", req.Method),
		zap.Stringer("id", req.ID),
		zap.Duration("duration", time.Since(start)),
		zap.Error(err))
	if err != nil {
		resp.Parameters["error"] = err.Error()
		return resp
	}
	if params != nil {
		resp.Parameters = params
	}
	resp.Success = true
	return resp
}

// Shutdown performs graceful shutdown:
//  1. Deregister from the registry (clients stop resolving to this server)
//  2. Set the shutdown flag so the Accept error is recognized as intentional
//  3. Close the listener and every client connection
//  4. Wait for connection handlers to finish their current request
//
// Steps 1 and 4 are each bounded by timeout. A failed deregistration is
// reported but does not stop the remaining steps.
func (s *Server) Shutdown(timeout time.Duration) error {
	var err error
	if s.registry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if derr := s.registry.Deregister(ctx, s.printerName, s.advertiseAddr); derr != nil {
			s.logger.Warn("deregister failed", zap.String("printer", s.printerName), zap.Error(derr))
			err = multierr.Append(err, fmt.Errorf("server: deregister: %w", derr))
		}
		cancel()
	}

	s.mu.Lock()
	s.shutdown.Store(true)
	if s.listener != nil {
		err = multierr.Append(err, s.listener.Close())
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return err
	case <-time.After(timeout):
		return multierr.Append(err, fmt.Errorf("server: timeout waiting for connection handlers"))
	}
}

// Package transport owns the TCP connection to the printer and runs calls
// over it.
//
// A Conn carries exactly one outstanding call at a time: write the request
// frame, read one response frame, check that the response echoes the request
// ID. There is no pipelining, no retry and no reconnect; every failure goes
// back to the caller.
//
//	caller ──Call(req)──→ codec ──→ frame ──→ net.Conn ──→ printer
//	caller ←──resp────── codec ←── frame ←── net.Conn ←── printer
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"form2idle/message"
	"form2idle/protocol"
)

// Conn is a connection to one printer. It starts closed; Open moves it to
// open and Close back to closed.
type Conn struct {
	addr string
	opts options

	mu     sync.Mutex  // Guards nc and logger; never held across a call
	nc     net.Conn    // nil while closed
	logger *zap.Logger // Carries the conn id of the current session

	calling sync.Mutex // One outstanding call per connection
}

// New returns a closed Conn for addr. A missing port defaults to DefaultPort.
func New(addr string, opts ...Option) *Conn {
	o := buildOptions(opts)
	return &Conn{
		addr:   Address(addr),
		opts:   o,
		logger: o.logger,
	}
}

// NewConn wraps an established connection. The returned Conn is open and
// takes ownership of nc.
func NewConn(nc net.Conn, opts ...Option) *Conn {
	o := buildOptions(opts)
	c := &Conn{
		addr: nc.RemoteAddr().String(),
		opts: o,
		nc:   nc,
	}
	c.logger = o.logger.With(zap.String("conn", newConnID()), zap.String("addr", c.addr))
	return c
}

// Dial is New followed by Open.
func Dial(ctx context.Context, addr string, opts ...Option) (*Conn, error) {
	c := New(addr, opts...)
	if err := c.Open(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// WithConn opens a Conn for the duration of fn and closes it on every exit
// path. A close error is reported only when fn itself succeeded.
func WithConn(ctx context.Context, addr string, fn func(*Conn) error, opts ...Option) (err error) {
	c := New(addr, opts...)
	if err := c.Open(ctx); err != nil {
		return err
	}
	defer func() {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}()
	return fn(c)
}

// Addr returns the remote address in host:port form.
func (c *Conn) Addr() string {
	return c.addr
}

// IsOpen reports whether the Conn currently owns a socket.
func (c *Conn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nc != nil
}

// Open dials the printer. Failures are not retried.
func (c *Conn) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.nc != nil {
		return fmt.Errorf("%w: %s", protocol.ErrAlreadyOpen, c.addr)
	}

	start := time.Now()
	nc, err := c.opts.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %w", protocol.ErrConnection, c.addr, err)
	}
	c.nc = nc
	c.logger = c.opts.logger.With(zap.String("conn", newConnID()), zap.String("addr", c.addr))
	c.logger.Debug("connection opened", zap.Duration("duration", time.Since(start)))
	return nil
}

// Close shuts the write side first so the printer sees an orderly end of
// stream, then releases the socket. Closing a closed Conn returns ErrNotOpen.
//
// Close may run while a call is blocked; that call then fails.
func (c *Conn) Close() error {
	c.mu.Lock()
	nc, logger := c.nc, c.logger
	c.nc = nil
	c.mu.Unlock()

	if nc == nil {
		return fmt.Errorf("%w: close %s", protocol.ErrNotOpen, c.addr)
	}

	var err error
	if hc, ok := nc.(interface{ CloseWrite() error }); ok {
		err = hc.CloseWrite()
	}
	err = multierr.Append(err, nc.Close())
	if err != nil {
		logger.Debug("connection closed with error", zap.Error(err))
		return fmt.Errorf("%w: close %s: %w", protocol.ErrConnection, c.addr, err)
	}
	logger.Debug("connection closed")
	return nil
}

// Call sends req and waits for its response.
//
// The transport sets no timeout of its own. When ctx is cancelled or its
// deadline passes, a blocked read or write is aborted. After
// ErrProtocolViolation, ErrCorrelationMismatch or an aborted call the stream
// position is unknown and the caller should Close the Conn.
func (c *Conn) Call(ctx context.Context, req *message.Request) (*message.Response, error) {
	c.calling.Lock()
	defer c.calling.Unlock()

	c.mu.Lock()
	nc, logger := c.nc, c.logger
	c.mu.Unlock()

	if nc == nil {
		return nil, fmt.Errorf("%w: call %s on %s", protocol.ErrNotOpen, req.Method, c.addr)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", protocol.ErrConnection, err)
	}

	stop := bindContext(ctx, nc)
	defer stop()

	// Step 1: Serialize and frame the request
	body, err := c.opts.codec.Encode(req)
	if err != nil {
		return nil, err
	}
	if err := protocol.Encode(nc, body); err != nil {
		return nil, ioError(ctx, err)
	}

	// Step 2: Read exactly one response frame
	payload, err := protocol.DecodeWithLimits(nc, c.opts.limits)
	if err != nil {
		err = ioError(ctx, err)
		if errors.Is(err, protocol.ErrProtocolViolation) {
			logger.Warn("framing desync", zap.String("method", req.Method), zap.Error(err))
		}
		return nil, err
	}

	var resp message.Response
	if err := c.opts.codec.Decode(payload, &resp); err != nil {
		return nil, err
	}

	// Step 3: The response must answer this request and no other
	if resp.ID != req.ID {
		logger.Warn("response id mismatch",
			zap.String("method", req.Method),
			zap.Stringer("id", req.ID),
			zap.Stringer("reply_id", resp.ID))
		return nil, fmt.Errorf("%w: sent %s, received %s", protocol.ErrCorrelationMismatch, req.ID.Braced(), resp.ID.Braced())
	}
	return &resp, nil
}

// aLongTimeAgo is a deadline that has always passed.
var aLongTimeAgo = time.Unix(1, 0)

// bindContext aborts blocked socket I/O once ctx is done. It runs after ctx
// reports its error, so a call cut short always sees ctx.Err. stop waits for
// an abort already in flight, so the past deadline cannot leak into the next
// call.
func bindContext(ctx context.Context, nc net.Conn) (stop func()) {
	nc.SetDeadline(time.Time{}) // clear anything left by an earlier aborted call
	aborted := make(chan struct{})
	stopAfter := context.AfterFunc(ctx, func() {
		nc.SetDeadline(aLongTimeAgo)
		close(aborted)
	})
	return func() {
		if !stopAfter() {
			<-aborted
		}
	}
}

// ioError reports a failed read or write, preferring the context error when
// the context is what cut the call short.
func ioError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", protocol.ErrConnection, ctxErr)
	}
	if errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("%w: %w", protocol.ErrConnectionClosed, err)
	}
	return err
}

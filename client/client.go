// Package client is the printer-facing API: open a connection, ask for the
// status, close. It layers call middleware over a transport.Conn.
package client

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"form2idle/message"
	"form2idle/middleware"
	"form2idle/transport"
)

// Client queries one printer over one connection, one call at a time.
type Client struct {
	conn   *transport.Conn
	call   middleware.CallFunc
	logger *zap.Logger
}

type options struct {
	logger      *zap.Logger
	middlewares []middleware.Middleware
	transport   []transport.Option
}

type Option func(*options)

func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMiddleware appends mw to the call chain; earlier ones run outermost.
func WithMiddleware(mw ...middleware.Middleware) Option {
	return func(o *options) { o.middlewares = append(o.middlewares, mw...) }
}

func WithTransportOptions(opts ...transport.Option) Option {
	return func(o *options) { o.transport = append(o.transport, opts...) }
}

// New returns a Client for the printer at addr (port 35 unless given). The
// connection is not opened yet.
func New(addr string, opts ...Option) *Client {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	conn := transport.New(addr, append([]transport.Option{transport.WithLogger(o.logger)}, o.transport...)...)
	return &Client{
		conn:   conn,
		call:   middleware.Chain(o.middlewares...)(conn.Call),
		logger: o.logger,
	}
}

// With opens a Client for the duration of fn and closes it on every exit
// path. A close error is reported only when fn itself succeeded.
func With(ctx context.Context, addr string, fn func(*Client) error, opts ...Option) (err error) {
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

func (c *Client) Open(ctx context.Context) error {
	return c.conn.Open(ctx)
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) Addr() string {
	return c.conn.Addr()
}

// Call sends a fresh request for method through the middleware chain.
func (c *Client) Call(ctx context.Context, method string) (*message.Response, error) {
	req, err := message.NewRequest(method)
	if err != nil {
		return nil, err
	}
	return c.call(ctx, req)
}

// Status asks the printer for its current status.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	resp, err := c.Call(ctx, message.MethodGetStatus)
	if err != nil {
		return nil, err
	}
	st, err := ParseStatus(resp)
	if err != nil {
		return nil, fmt.Errorf("client: %s: %w", c.conn.Addr(), err)
	}
	return st, nil
}

// PrintTimeRemaining returns the seconds left on the current print, or 0.0
// when the printer is not printing or the countdown has run out. Transport
// errors are returned unchanged.
func (c *Client) PrintTimeRemaining(ctx context.Context) (float64, error) {
	st, err := c.Status(ctx)
	if err != nil {
		return 0, err
	}
	return st.Seconds(), nil
}

package transport

import (
	mathrand "math/rand"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"form2idle/codec"
	"form2idle/protocol"
)

// DefaultPort is the printer's status port.
const DefaultPort = 35

type options struct {
	codec  codec.Codec
	limits protocol.Limits
	logger *zap.Logger
	dialer *net.Dialer
}

// Option configures a Conn.
type Option func(*options)

func WithCodec(c codec.Codec) Option {
	return func(o *options) { o.codec = c }
}

func WithLimits(l protocol.Limits) Option {
	return func(o *options) { o.limits = l }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithDialer replaces the dialer used by Open. Its Timeout, if any, is the
// only bound on connection setup besides the Open context.
func WithDialer(d *net.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

func buildOptions(opts []Option) options {
	o := options{
		codec:  codec.Default(),
		limits: protocol.DefaultLimits(),
		logger: zap.NewNop(),
		dialer: &net.Dialer{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Address appends DefaultPort to host when it has no port of its own.
func Address(host string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	return net.JoinHostPort(host, strconv.Itoa(DefaultPort))
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// newConnID returns a sortable id used only to correlate log lines.
func newConnID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// Package middleware wraps calls to the printer.
//
// The transport itself never times out, retries or throttles. A caller that
// wants bounded waiting or spaced-out polling composes those behaviours here,
// around Conn.Call.
package middleware

import (
	"context"

	"form2idle/message"
)

// CallFunc performs one call. transport.Conn.Call has this signature.
type CallFunc func(ctx context.Context, req *message.Request) (*message.Response, error)

type Middleware func(next CallFunc) CallFunc

// Chain composes middlewares so the first one listed runs outermost:
//
//	Chain(A, B, C)(call) → A(B(C(call)))
func Chain(middlewares ...Middleware) Middleware {
	return func(next CallFunc) CallFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

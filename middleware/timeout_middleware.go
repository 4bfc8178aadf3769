package middleware

import (
	"context"
	"time"

	"form2idle/message"
)

// Timeout bounds each call. The transport aborts the blocked socket operation
// when the deadline passes, so no goroutine is left behind.
func Timeout(timeout time.Duration) Middleware {
	return func(next CallFunc) CallFunc {
		return func(ctx context.Context, req *message.Request) (*message.Response, error) {
			if timeout <= 0 {
				return next(ctx, req)
			}
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return next(ctx, req)
		}
	}
}

package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"form2idle/message"
)

// RateLimit spaces calls out with a token bucket. Unlike a server-side
// limiter it waits for a token instead of rejecting, which turns it into the
// poll interval for repeated status queries. Cancelling ctx while waiting
// returns ctx's error and no call is made.
func RateLimit(r rate.Limit, burst int) Middleware {
	limiter := rate.NewLimiter(r, burst)
	return func(next CallFunc) CallFunc {
		return func(ctx context.Context, req *message.Request) (*message.Response, error) {
			if err := limiter.Wait(ctx); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, ctxErr
				}
				return nil, err
			}
			return next(ctx, req)
		}
	}
}

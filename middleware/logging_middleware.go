package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"form2idle/message"
)

// Logging records every call with its duration. Failures are logged at warn
// level and still returned unchanged.
func Logging(logger *zap.Logger) Middleware {
	return func(next CallFunc) CallFunc {
		return func(ctx context.Context, req *message.Request) (*message.Response, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.Stringer("id", req.ID),
				zap.Duration("duration", time.Since(start)),
			}
			if err != nil {
				logger.Warn("call failed", append(fields, zap.Error(err))...)
				return resp, err
			}
			if !resp.Success {
				logger.Info("call unsuccessful", append(fields, zap.Any("parameters", resp.Parameters))...)
				return resp, nil
			}
			logger.Debug("call", fields...)
			return resp, nil
		}
	}
}

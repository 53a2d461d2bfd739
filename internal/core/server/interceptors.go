package server

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/solatis/segmenter/internal/core/observability"
)

// timeoutInterceptor bounds every call by d unless the caller set a
// shorter deadline.
func timeoutInterceptor(d time.Duration) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if d <= 0 {
			return handler(ctx, req)
		}
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return handler(ctx, req)
	}
}

// loggingInterceptor logs each call with its status code and records the
// request metric.
func loggingInterceptor(logger *slog.Logger, metrics *observability.Metrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		elapsed := time.Since(start)
		code := status.Code(err)

		metrics.ObserveRequest("grpc", info.FullMethod, code.String(), elapsed)
		attrs := []any{"method", info.FullMethod, "code", code.String(), "elapsed", elapsed}
		if err != nil {
			logger.Warn("grpc call failed", append(attrs, "error", err)...)
		} else {
			logger.Debug("grpc call", attrs...)
		}
		return resp, err
	}
}

// internal/middleware/metrics.go
package middleware

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/SyedDaiam9101/leafscan/internal/logging"
	"github.com/SyedDaiam9101/leafscan/internal/metrics"
)

// UnaryMetricsInterceptor records the handling latency of each unary call,
// labelled by full method name and status code.
func UnaryMetricsInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		elapsed := time.Since(start)

		// status.Code maps nil to OK and foreign errors to Unknown.
		code := status.Code(err).String()
		metrics.RecordGRPCLatency(info.FullMethod, code, elapsed.Seconds())

		logging.FromContext(ctx).Debug().
			Str("method", info.FullMethod).
			Str("code", code).
			Dur("elapsed", elapsed).
			Msg("gRPC call handled")

		return resp, err
	}
}

package observability

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"dispatch-copilot-service/internal/observability/metrics"
)

const healthPrefix = "/grpc.health.v1.Health/"

// UnaryServerInterceptor records every unary call and turns handler panics
// into Internal errors.
func UnaryServerInterceptor(m *metrics.Metrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("method", info.FullMethod).Msg("gRPC handler panicked")
				err = status.Error(codes.Internal, "internal error")
			}
			observe(ctx, m, info.FullMethod, "unary", err, time.Since(start))
		}()
		return handler(ctx, req)
	}
}

// StreamServerInterceptor records every stream when it ends. Health Watch is
// the only stream the hub serves.
func StreamServerInterceptor(m *metrics.Metrics) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("method", info.FullMethod).Msg("gRPC stream panicked")
				err = status.Error(codes.Internal, "internal error")
			}
			observe(ss.Context(), m, info.FullMethod, "stream", err, time.Since(start))
		}()
		return handler(srv, ss)
	}
}

func observe(ctx context.Context, m *metrics.Metrics, method, kind string, err error, d time.Duration) {
	code := status.Code(err)
	m.RecordGRPC(method, code.String(), d.Seconds())

	// Probes hit health every few seconds; keep them out of info logs.
	level := zerolog.InfoLevel
	switch {
	case code != codes.OK && code != codes.Canceled:
		level = zerolog.WarnLevel
	case strings.HasPrefix(method, healthPrefix):
		level = zerolog.DebugLevel
	}

	ev := log.WithLevel(level).
		Str("method", method).
		Str("kind", kind).
		Str("code", code.String()).
		Dur("duration", d)
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		ev = ev.Str("peer", p.Addr.String())
	}
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg("gRPC call completed")
}

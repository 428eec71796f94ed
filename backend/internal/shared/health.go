// ============================================================================
// backend/internal/shared/health.go
// gRPC health and reflection server
// ============================================================================

package shared

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Pinger reports whether a backing dependency is reachable
type Pinger func(ctx context.Context) error

// NewHealthServer returns a gRPC server exposing grpc.health.v1.Health and
// reflection. The service name starts SERVING; WatchHealth flips it when
// the pinger fails.
func NewHealthServer(serviceName string) (*grpc.Server, *health.Server) {
	grpcServer := grpc.NewServer()

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	reflection.Register(grpcServer)

	return grpcServer, healthServer
}

// WatchHealth polls ping every interval and updates the serving status of
// serviceName until ctx is done.
func WatchHealth(ctx context.Context, hs *health.Server, serviceName string, ping Pinger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-ticker.C:
			st := healthpb.HealthCheckResponse_SERVING
			if err := ping(ctx); err != nil {
				st = healthpb.HealthCheckResponse_NOT_SERVING
			}
			hs.SetServingStatus(serviceName, st)
		}
	}
}

// Package grpcserver exposes the gRPC health service used by orchestrators.
package grpcserver

import (
	"context"
	"time"

	gp "github.com/grpc-ecosystem/go-grpc-prometheus"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is reported alongside the overall ("") status.
const ServiceName = "bank.api"

type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthService mirrors database reachability into the gRPC health status.
type HealthService struct {
	hs       *health.Server
	db       Pinger
	interval time.Duration
	timeout  time.Duration
	stop     chan struct{}
	done     chan struct{}
}

// New builds an instrumented gRPC server with the health service registered.
// Everything starts NOT_SERVING until the first successful ping.
func New(db Pinger, interval time.Duration) (*grpc.Server, *HealthService) {
	srv := grpc.NewServer(
		grpc.UnaryInterceptor(gp.UnaryServerInterceptor),
		grpc.StreamInterceptor(gp.StreamServerInterceptor),
	)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	gp.Register(srv)

	h := &HealthService{
		hs:       hs,
		db:       db,
		interval: interval,
		timeout:  2 * time.Second,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return srv, h
}

// Check pings the database once and publishes the result.
func (h *HealthService) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := h.db.Ping(ctx); err != nil {
		log.WithError(err).Warn("[HEALTH] Database ping failed")
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.set(status)
	return status
}

func (h *HealthService) set(status healthpb.HealthCheckResponse_ServingStatus) {
	h.hs.SetServingStatus("", status)
	h.hs.SetServingStatus(ServiceName, status)
}

func (h *HealthService) Start() {
	log.Debug("[HEALTH] Starting health")
	go func() {
		defer close(h.done)
		t := time.NewTicker(h.interval)
		defer t.Stop()
		for {
			h.Check(context.Background())
			select {
			case <-h.stop:
				log.Debug("[HEALTH] Stopped health")
				return
			case <-t.C:
			}
		}
	}()
}

// Stop ends the ping loop and marks every service NOT_SERVING so clients
// drain before the server goes away.
func (h *HealthService) Stop() {
	log.Debug("[HEALTH] Stopping health")
	close(h.stop)
	<-h.done
	h.hs.Shutdown()
}

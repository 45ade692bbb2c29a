package rpc

import (
	"context"
	"net"
	"sort"
	"sync"
	"time"

	"PPSignal/logger"
	"PPSignal/tools/errs"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceRelay is the health service name of the relay core.
const ServiceRelay = "ppsignal.Relay"

// Probe checks one backend.
type Probe func(ctx context.Context) error

// HealthServer exposes grpc.health.v1 with one service per probe
// ("ppsignal.<name>") next to the always serving relay core.
type HealthServer struct {
	srv      *grpc.Server
	hs       *health.Server
	interval time.Duration

	mu     sync.Mutex
	probes map[string]Probe
	last   map[string]bool
}

func NewHealthServer(probes map[string]Probe, interval time.Duration) *HealthServer {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	h := &HealthServer{
		srv:      grpc.NewServer(),
		hs:       health.NewServer(),
		interval: interval,
		probes:   probes,
		last:     make(map[string]bool),
	}
	grpc_health_v1.RegisterHealthServer(h.srv, h.hs)
	h.hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	h.hs.SetServingStatus(ServiceRelay, grpc_health_v1.HealthCheckResponse_SERVING)
	return h
}

func ServiceName(probe string) string { return "ppsignal." + probe }

// Serve blocks serving grpc on lis.
func (h *HealthServer) Serve(lis net.Listener) error {
	logger.Info("grpc health listening", zap.String("addr", lis.Addr().String()))
	if err := h.srv.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return errs.WrapMsg(err, "grpc serve")
	}
	return nil
}

// CheckOnce runs every probe and publishes the result.
func (h *HealthServer) CheckOnce(ctx context.Context) map[string]bool {
	h.mu.Lock()
	names := make([]string, 0, len(h.probes))
	for n := range h.probes {
		names = append(names, n)
	}
	h.mu.Unlock()
	sort.Strings(names)

	out := make(map[string]bool, len(names))
	for _, n := range names {
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := h.probes[n](pctx)
		cancel()

		ok := err == nil
		out[n] = ok
		st := grpc_health_v1.HealthCheckResponse_SERVING
		if !ok {
			st = grpc_health_v1.HealthCheckResponse_NOT_SERVING
		}
		h.hs.SetServingStatus(ServiceName(n), st)

		h.mu.Lock()
		prev, seen := h.last[n]
		h.last[n] = ok
		h.mu.Unlock()
		if !seen || prev != ok {
			logger.Info("backend health changed", zap.String("backend", n), zap.Bool("ok", ok), zap.Error(err))
		}
	}
	return out
}

// Run probes every interval until ctx is done.
func (h *HealthServer) Run(ctx context.Context) {
	h.CheckOnce(ctx)
	t := time.NewTicker(h.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			h.CheckOnce(ctx)
		}
	}
}

// Shutdown marks every service NOT_SERVING and stops the server.
func (h *HealthServer) Shutdown() {
	h.hs.Shutdown()
	h.srv.GracefulStop()
}

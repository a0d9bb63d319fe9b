package main

import (
	"context"
	"fmt"
	"net"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const healthService = "randod"

// provisioned reports whether the randomizer jar and the presets directory are in place.
func provisioned(fs afero.Fs, cfg config) bool {
	jar, err := afero.Exists(fs, cfg.Engine.Jar)
	if err != nil || !jar {
		return false
	}
	dir, err := afero.DirExists(fs, cfg.PresetsDir)
	return err == nil && dir
}

func newHealthServer(fs afero.Fs, cfg config) *health.Server {
	hs := health.NewServer()
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if provisioned(fs, cfg) {
		status = healthpb.HealthCheckResponse_SERVING
	}
	hs.SetServingStatus("", status)
	hs.SetServingStatus(healthService, status)
	return hs
}

// serveHealth runs the gRPC health service on addr until ctx is done.
func serveHealth(ctx context.Context, addr string, hs *health.Server, logger *log.Logger) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpc listen %s: %w", addr, err)
	}

	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	go func() {
		<-ctx.Done()
		hs.Shutdown()
		srv.GracefulStop()
	}()

	logger.Info("grpc health listening", "addr", lis.Addr().String())
	return srv.Serve(lis)
}

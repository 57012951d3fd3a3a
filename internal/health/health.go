// Package health exposes store connectivity through the standard gRPC health service.
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// StoreService is the health service name that tracks the repository.
const StoreService = "hangman.Store"

// Pinger is anything whose connectivity can be checked.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker pings the store and mirrors the result into a gRPC health server.
type Checker struct {
	pinger  Pinger
	timeout time.Duration
	server  *grpchealth.Server
}

// NewChecker creates a checker. Both the overall service and StoreService
// start as NOT_SERVING until the first check.
func NewChecker(pinger Pinger, timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	srv := grpchealth.NewServer()
	srv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	srv.SetServingStatus(StoreService, healthpb.HealthCheckResponse_NOT_SERVING)
	return &Checker{pinger: pinger, timeout: timeout, server: srv}
}

// Server returns the health server for registration.
func (c *Checker) Server() *grpchealth.Server {
	return c.server
}

// CheckOnce pings the store and updates the serving status.
func (c *Checker) CheckOnce(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := c.pinger.Ping(ctx); err != nil {
		slog.Warn("Store health check failed", "error", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	c.server.SetServingStatus("", status)
	c.server.SetServingStatus(StoreService, status)
	return status
}

// Start checks immediately and then every interval until ctx is canceled.
func (c *Checker) Start(ctx context.Context, interval time.Duration) {
	c.CheckOnce(ctx)
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.CheckOnce(ctx)
			case <-ctx.Done():
				c.server.Shutdown()
				return
			}
		}
	}()
}

// NewGRPCServer returns a gRPC server with the health service registered.
func NewGRPCServer(c *Checker, opts ...grpc.ServerOption) *grpc.Server {
	s := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(s, c.Server())
	return s
}

// Serve runs the gRPC health server on addr until ctx is canceled.
func Serve(ctx context.Context, addr string, c *Checker) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return ServeListener(ctx, lis, c)
}

// ServeListener runs the gRPC health server on lis until ctx is canceled.
func ServeListener(ctx context.Context, lis net.Listener, c *Checker) error {
	s := NewGRPCServer(c)

	go func() {
		<-ctx.Done()
		s.GracefulStop()
	}()

	slog.Info("gRPC health server listening", "addr", lis.Addr().String())
	if err := s.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve grpc: %w", err)
	}
	return nil
}

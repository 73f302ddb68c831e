// impulsed is the Interface daemon: it accepts external launch/shutdown
// requests, fans them out to registered Actuators as Tasks, and routes the
// resulting LaunchResult/ShutdownResult back to the caller that is waiting
// on it.
//
// It exposes two gRPC services on two separate listen addresses (External
// for end users, Internal for Actuators) plus a Prometheus /metrics
// endpoint, and drains in-flight RPCs on SIGINT/SIGTERM before exiting.
//
// Build: go build -o impulsed ./cmd/impulsed
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/pipeops/impulse/internal/config"
	"github.com/pipeops/impulse/internal/dispatch"
	"github.com/pipeops/impulse/internal/metrics"
	"github.com/pipeops/impulse/internal/rpc"
)

const appVersion = "0.1.0"

func main() {
	configPath := flag.String("config", "/etc/impulse/config.toml", "path to the impulsed config file")
	flag.Parse()

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		fatal("load config: %v", err)
	}
	config.LoadFromEnv(cfg)
	if err := cfg.Validate(); err != nil {
		fatal("invalid config: %v", err)
	}

	logger := logrus.New()
	cfg.ApplyToLogger(logger)
	log := logger.WithField("process", "interface")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("received shutdown signal, draining")
		cancel()
	}()

	d := dispatch.New(appVersion, log)

	externalSrv := newExternalGRPCServer(cfg.Interface.RequestTimeout)
	rpc.RegisterExternalServer(externalSrv, d)

	internalSrv := newGRPCServer()
	rpc.RegisterInternalServer(internalSrv, d)

	externalLis, err := net.Listen("tcp", cfg.Interface.ExternalListenAddress)
	if err != nil {
		fatal("listen external %s: %v", cfg.Interface.ExternalListenAddress, err)
	}
	internalLis, err := net.Listen("tcp", cfg.Interface.InternalListenAddress)
	if err != nil {
		fatal("listen internal %s: %v", cfg.Interface.InternalListenAddress, err)
	}

	errCh := make(chan error, 2)
	go func() {
		log.WithField("address", cfg.Interface.ExternalListenAddress).Info("external service listening")
		errCh <- externalSrv.Serve(externalLis)
	}()
	go func() {
		log.WithField("address", cfg.Interface.InternalListenAddress).Info("internal service listening")
		errCh <- internalSrv.Serve(internalLis)
	}()

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, metrics.Handler())
		mux.HandleFunc("/healthz", healthzHandler)
		metricsSrv = &http.Server{Addr: cfg.Metrics.Address, Handler: mux}
		go func() {
			log.WithField("address", cfg.Metrics.Address).Info("metrics server listening")
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		log.WithError(err).Error("server exited unexpectedly")
	}

	externalSrv.GracefulStop()
	internalSrv.GracefulStop()
	if metricsSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	log.Info("impulsed exited")
}

func newGRPCServer() *grpc.Server {
	return grpc.NewServer()
}

// newExternalGRPCServer wraps every unary External RPC with a server-enforced
// deadline: Config.Interface.RequestTimeout bounds LaunchVm/ShutdownVm (and
// the cheap status calls) from the moment the server starts handling them,
// independent of whatever deadline (if any) the caller itself set.
func newExternalGRPCServer(requestTimeout time.Duration) *grpc.Server {
	return grpc.NewServer(grpc.UnaryInterceptor(requestTimeoutInterceptor(requestTimeout)))
}

func requestTimeoutInterceptor(timeout time.Duration) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return handler(ctx, req)
	}
}

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "impulsed: "+format+"\n", args...)
	os.Exit(1)
}

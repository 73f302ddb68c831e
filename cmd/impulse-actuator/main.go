// impulse-actuator is the Actuator daemon: it registers with an impulsed
// Interface, subscribes to its Controller task stream, drives a local Engine
// per task, and reports results back. It exits 0 when the Controller stream
// ends cleanly and treats a failed Register/Controller call as fatal, so a
// process supervisor can restart it.
//
// Build: go build -o impulse-actuator ./cmd/impulse-actuator
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/pipeops/impulse/internal/actuator"
	"github.com/pipeops/impulse/internal/config"
	"github.com/pipeops/impulse/internal/engine"
	"github.com/pipeops/impulse/internal/metrics"
)

func main() {
	configPath := flag.String("config", "/etc/impulse/config.toml", "path to the impulse-actuator config file")
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
	log := logger.WithField("process", "actuator")

	eng, err := engine.New(cfg.Engine, log)
	if err != nil {
		fatal("init engine: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("received shutdown signal, draining command loop")
		eng.Shutdown()
		cancel()
	}()

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, metrics.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		srv := &http.Server{Addr: cfg.Metrics.Address, Handler: mux}
		go func() {
			log.WithField("address", cfg.Metrics.Address).Info("metrics server listening")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Warn("metrics server exited")
			}
		}()
	}

	actCfg := actuator.Config{
		InterfaceAddress:  cfg.Actuator.InterfaceAddress,
		DialRetries:       cfg.Actuator.DialRetries,
		DialRetryInterval: cfg.Actuator.DialRetryInterval,
	}

	if err := actuator.Run(ctx, actCfg, eng, log); err != nil {
		fatal("command loop: %v", err)
	}
	log.Info("impulse-actuator exited")
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "impulse-actuator: "+format+"\n", args...)
	os.Exit(1)
}

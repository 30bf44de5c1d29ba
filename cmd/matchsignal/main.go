// Command matchsignal runs the matchmaking and signaling server: it
// accepts WebSocket connections, queues and pairs anonymous users per the
// configured preference/tier rules, and relays offer/answer/ice-candidate
// and chat messages between paired partners.
//
// Startup and shutdown follow the teacher's main.go shape — signal.Notify
// on SIGINT/SIGTERM, servers started in their own goroutines, block until
// a signal arrives, log and drain on the way out — generalized from one
// STUN/TURN-plus-signaling binary into one signaling binary with a
// separate metrics listener.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"matchsignal/internal/config"
	"matchsignal/internal/logging"
	"matchsignal/internal/metrics"
	"matchsignal/internal/server"
	"matchsignal/internal/signaling"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "matchsignal:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, v, err := config.Load(os.Args[1:])
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer logger.Sync()

	reg := prometheus.NewRegistry()
	recorder := metrics.New(reg)

	transport := signaling.NewWSTransport(cfg.AllowedOrigin, logging.Component(logger, "transport"))
	core := signaling.NewCore(transport, logging.Component(logger, "supervisor"), recorder)

	config.WatchAllowedOrigin(v, func(newOrigin string) {
		logger.Info("allowed_origin updated from config file", zap.String("allowed_origin", newOrigin))
		transport.SetAllowedOrigin(newOrigin)
	})

	signalingAddr := fmt.Sprintf("%s:%d", cfg.BindAddress, cfg.ListenPort)
	signalingSrv := &http.Server{
		Addr:    signalingAddr,
		Handler: server.New(core, transport, logging.Component(logger, "server")),
	}

	var metricsSrv *http.Server
	if cfg.MetricsPort != 0 {
		metricsAddr := fmt.Sprintf("%s:%d", cfg.BindAddress, cfg.MetricsPort)
		metricsSrv = &http.Server{
			Addr:    metricsAddr,
			Handler: server.NewMetricsRouter(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
		}
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	stopQueueGauges := make(chan struct{})
	go reportQueueDepth(core, recorder, stopQueueGauges)
	defer close(stopQueueGauges)

	go func() {
		logger.Info("signaling server listening", zap.String("addr", signalingAddr))
		if err := signalingSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("signaling server stopped", zap.Error(err))
		}
	}()

	if metricsSrv != nil {
		go func() {
			logger.Info("metrics server listening", zap.String("addr", metricsSrv.Addr))
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server stopped", zap.Error(err))
			}
		}()
	}

	<-sigs
	logger.Info("shutdown signal received, draining")

	drainPairedConnections(core, transport, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := signalingSrv.Shutdown(ctx); err != nil {
		logger.Warn("signaling server shutdown error", zap.Error(err))
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logger.Warn("metrics server shutdown error", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
	return nil
}

// reportQueueDepth periodically copies Core's queue-bucket sizes into the
// metrics recorder. This is the only thing that ever reads QueueSnapshot:
// the protocol itself has no notion of queue depth, it exists purely so
// /metrics can show operators how long each pool is.
func reportQueueDepth(core *signaling.Core, recorder *metrics.Recorder, stop <-chan struct{}) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			for bucket, n := range core.QueueSnapshot() {
				recorder.QueueDepth(bucket, n)
			}
		}
	}
}

// drainPairedConnections best-effort notifies every still-paired
// connection that its partner is gone before the listener stops accepting
// new frames, so a client sees a clean partner-disconnected rather than a
// bare socket close. This is the supplemented graceful-shutdown behavior
// noted in SPEC_FULL.md §10; it is best-effort and never blocks shutdown
// on a slow or vanished peer.
func drainPairedConnections(core *signaling.Core, transport signaling.Transport, logger *zap.Logger) {
	for _, u := range core.Snapshot() {
		if u.State != signaling.Paired {
			continue
		}
		if err := transport.Send(u.ConnID, signaling.EventPartnerDisconnected, struct{}{}); err != nil {
			logger.Debug("best-effort shutdown notice failed", zap.String("conn_id", u.ConnID.String()), zap.Error(err))
		}
	}
}

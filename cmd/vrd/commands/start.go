package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vrlabs/vrd/internal/config"
	"github.com/vrlabs/vrd/internal/logger"
	"github.com/vrlabs/vrd/internal/metrics"
	"github.com/vrlabs/vrd/internal/replica"
	"github.com/vrlabs/vrd/internal/replicaconfig"
	"github.com/vrlabs/vrd/internal/statemachine"
	"github.com/vrlabs/vrd/internal/statusapi"
	"github.com/vrlabs/vrd/internal/telemetry"
	"github.com/vrlabs/vrd/internal/timer"
	"github.com/vrlabs/vrd/internal/transport"
	"github.com/vrlabs/vrd/internal/wire"
)

var pidFile string

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start this process's replica",
	Long: `Start runs a single replica of the deployment described by the
configuration file, driving it with a TCP transport, a tick-based
timer, and (optionally) a status API and Prometheus scrape endpoint.

Examples:
  # Start replica 0 of a 3-node deployment
  vrd start --config replica0.yaml

  # Override a field via environment variable
  VRD_REPLICA_ID=1 vrd start --config deployment.yaml`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "Path to PID file (optional)")
}

// inboundAdapter forwards transport deliveries to a *replica.Replica
// constructed after the transport itself, breaking the construction
// cycle between the two (the transport needs a handler to dial into,
// the replica needs the transport as its Sender).
type inboundAdapter struct {
	target *replica.Replica
}

func (a *inboundAdapter) OnInbound(from uint64, msg wire.Message, reply transport.ReplyFunc) {
	a.target.OnInbound(from, msg, reply)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(viper.New(), GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "vrd",
		ServiceVersion: Version,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	logger.Info("starting replica", "replica_id", cfg.ReplicaID, "replicas", len(cfg.Replicas), "tick_interval", cfg.TickInterval)

	replicaCfg, err := replicaconfig.New(cfg.Replicas)
	if err != nil {
		return fmt.Errorf("failed to build replica config: %w", err)
	}

	var reg *prometheus.Registry
	var replicaMetrics *metrics.Replica
	if cfg.Metrics.Enabled {
		reg = prometheus.NewRegistry()
		replicaMetrics = metrics.NewReplica(reg, cfg.ReplicaID)
	}

	adapter := &inboundAdapter{}
	tcp := transport.NewTCP(cfg.ReplicaID, cfg.Replicas, adapter)

	sm := statemachine.NewCounter()
	r := replica.New(cfg.ReplicaID, replicaCfg, tcp, sm, cfg.ViewChangeIdleTicks, replicaMetrics)
	adapter.target = r

	transportDone := make(chan error, 1)
	go func() {
		transportDone <- tcp.ListenAndServe(ctx)
	}()

	tick := timer.New(cfg.TickInterval, r)
	go tick.Run(ctx)

	var statusSrv *http.Server
	statusDone := make(chan error, 1)
	if cfg.StatusAPI.Enabled {
		statusSrv = &http.Server{
			Addr:    cfg.StatusAPI.Addr,
			Handler: statusapi.NewRouter(r, reg),
		}
		go func() {
			if err := statusSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				statusDone <- err
				return
			}
			statusDone <- nil
		}()
		logger.Info("status API listening", "addr", cfg.StatusAPI.Addr)
	}

	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("replica is running, press Ctrl+C to stop")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received, initiating graceful shutdown")
	case err := <-transportDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("transport stopped with error", "error", err)
		}
	}

	cancel()
	if statusSrv != nil {
		_ = statusSrv.Close()
	}
	_ = tcp.Close()

	logger.Info("replica stopped")
	return nil
}

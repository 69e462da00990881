package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/uploadkit/engine/internal/logger"
	"github.com/uploadkit/engine/pkg/metrics"
	"github.com/uploadkit/engine/pkg/statusserver"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local read-only status and metrics server",
	Long: `serve starts the status HTTP server (/health, /sessions/{id}, /metrics)
and its background progress poller, and blocks until interrupted. It does
not itself run uploads; pair it with start/resume/recover running against
the same store (§10 Domain Stack).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		s, err := openStore(cfg)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigCh
			logger.Info("shutdown signal received")
			cancel()
		}()

		var poller *metrics.Poller
		if cfg.Metrics.Enabled {
			m := metrics.New(prometheus.DefaultRegisterer)
			poller = metrics.NewPoller(s, m, cfg.Metrics.PollInterval)
			poller.Start(ctx)
			defer poller.Stop()
		}

		if !cfg.StatusServer.Enabled {
			logger.Info("status server disabled; blocking until interrupted")
			<-ctx.Done()
			return nil
		}

		server := statusserver.NewServer(statusserver.Config{Addr: cfg.StatusServer.Addr}, s)
		return server.Start(ctx)
	},
}

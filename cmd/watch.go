package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/speedtrack/internal/ingest"
)

var (
	watchSchedule    string
	watchNow         bool
	watchMetricsPort int
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run measurement cycles on a schedule until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		spec := watchSchedule
		if spec == "" {
			spec = cfg.Schedule.Cron
		}
		sched, err := ingest.NewScheduler(env.Pipeline, spec)
		if err != nil {
			return err
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return sched.Run(gctx, watchNow)
		})
		if watchMetricsPort > 0 {
			g.Go(func() error {
				return serveMetrics(gctx, watchMetricsPort)
			})
		}
		return g.Wait()
	},
}

// serveMetrics exposes the Prometheus registry until ctx is cancelled.
func serveMetrics(ctx context.Context, port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("serving metrics", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "metrics listen")
	}
	return nil
}

func init() {
	watchCmd.Flags().StringVar(&watchSchedule, "schedule", "", "cron expression or @every interval (default from config)")
	watchCmd.Flags().BoolVar(&watchNow, "now", true, "run one cycle immediately before the first tick")
	watchCmd.Flags().IntVar(&watchMetricsPort, "metrics-port", 0, "serve /metrics on this port (0 disables)")
	rootCmd.AddCommand(watchCmd)
}

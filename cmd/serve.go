package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/speedtrack/internal/config"
	"github.com/sells-group/speedtrack/internal/dashboard"
	"github.com/sells-group/speedtrack/internal/store"
)

var (
	servePort    int
	serveOrigins []string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		wh, err := openWarehouse(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() { _ = wh.Close() }()

		loc, err := time.LoadLocation(cfg.Calendar.Timezone)
		if err != nil {
			return eris.Wrap(err, "load dashboard timezone")
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(wh, cfg, loc, serveOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		return g.Wait()
	},
}

// newRouter mounts the dashboard API and the Prometheus endpoint.
func newRouter(q store.Querier, c *config.Config, loc *time.Location, origins []string) http.Handler {
	h := dashboard.NewHandler(q, dashboard.Options{
		Location:       loc,
		DefaultDays:    c.Dashboard.DefaultDays,
		ISPPromiseMbps: c.Dashboard.ISPPromiseMbps,
		AllowedOrigins: origins,
		Clock:          clockwork.NewRealClock(),
	})

	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Mount("/", h.Routes())
	return r
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().StringSliceVar(&serveOrigins, "cors-origin", nil, "allowed CORS origins (default any)")
	rootCmd.AddCommand(serveCmd)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/nhle/helpdesk-sync/internal/logging"
	"github.com/nhle/helpdesk-sync/internal/model"
	"github.com/nhle/helpdesk-sync/internal/sink"
	"github.com/nhle/helpdesk-sync/internal/source"
	"github.com/nhle/helpdesk-sync/internal/source/zendesk"
	"github.com/nhle/helpdesk-sync/internal/store"
	hdsync "github.com/nhle/helpdesk-sync/internal/sync"
)

var runOnce bool

var runCmd = &cobra.Command{
	Use:     "run",
	GroupID: "sync",
	Short:   "Run sync cycles until interrupted",
	Long: `Validate the configuration, check the helpdesk credentials, then run
sync cycles.

With tickets_last_updated_n_days_ago set to -1 (or --once) a single cycle
runs and the command exits. Otherwise cycles repeat every
sleep_between_runs minutes, or at each firing of schedule, until SIGINT or
SIGTERM. A cycle in progress is allowed to finish; interrupt a second time
to abort it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(true)
		if err != nil {
			return err
		}

		logger, logCloser, err := logging.Setup(cfg.Log)
		if err != nil {
			return err
		}
		defer logCloser.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		done := make(chan struct{})
		defer func() {
			close(done)
			stop()
		}()
		go func() {
			select {
			case <-ctx.Done():
				// Restore default signal handling so a second interrupt
				// kills the process.
				stop()
				logger.Info("shutdown requested, finishing current cycle")
			case <-done:
			}
		}()

		return runSync(ctx, cfg, logger)
	},
}

func init() {
	runCmd.Flags().BoolVar(&runOnce, "once", false, "run a single cycle and exit")
}

// newSource builds the helpdesk adapter for cfg.
func newSource(cfg *model.Config) source.Source {
	return zendesk.NewAdapter(zendesk.ClientConfig{
		BaseURL:    cfg.BaseURL(),
		User:       cfg.User,
		Password:   cfg.Password,
		APIToken:   cfg.APIToken,
		Timeout:    cfg.APITimeout(),
		RetryCount: cfg.API.RetryCount,
	})
}

func runSync(ctx context.Context, cfg *model.Config, logger *slog.Logger) error {
	src := newSource(cfg)

	agent, err := src.ValidateConnection(ctx)
	if err != nil {
		if source.IsAuthError(err) {
			return fmt.Errorf("helpdesk rejected the credentials for %s: %w", cfg.User, err)
		}
		return err
	}
	logger.Info("connected to helpdesk", "url", cfg.BaseURL(), "agent", agent)

	var (
		st        *store.SQLiteStore
		recStore  sink.RecordStore
		runRecord hdsync.RunRecorder
	)
	if cfg.Store.Path != "" {
		st, err = store.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer st.Close()
		recStore, runRecord = st, st
	}

	sinks, err := sink.Build(ctx, cfg, os.Stdout, recStore)
	if err != nil {
		return err
	}
	defer func() {
		if err := sinks.Close(); err != nil {
			logger.Error("closing sinks", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := hdsync.NewMetrics(reg)

	if cfg.Metrics.Addr != "" {
		srv := serveMetrics(cfg.Metrics.Addr, reg, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	engine := hdsync.NewEngine(src, sinks, hdsync.OptionsFromConfig(cfg),
		hdsync.WithLogger(logger),
		hdsync.WithMetrics(metrics),
	)

	pollerOpts := []hdsync.PollerOption{
		hdsync.WithInterval(cfg.SleepInterval()),
		hdsync.WithPollerLogger(logger),
	}
	if cfg.Schedule != "" {
		schedule, err := cron.ParseStandard(cfg.Schedule)
		if err != nil {
			return fmt.Errorf("parsing schedule: %w", err)
		}
		pollerOpts = append(pollerOpts, hdsync.WithSchedule(schedule))
	}
	if runRecord != nil {
		pollerOpts = append(pollerOpts, hdsync.WithRunRecorder(runRecord))
	}

	poller := hdsync.NewPoller(engine, hdsync.ModeFor(cfg, runOnce), pollerOpts...)
	return poller.Run(ctx)
}

// serveMetrics exposes reg on addr at /metrics.
func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	return srv
}

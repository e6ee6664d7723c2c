package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/tailorcast/monitoring-agents-it/agent/internal/api"
	"github.com/tailorcast/monitoring-agents-it/agent/internal/config"
	"github.com/tailorcast/monitoring-agents-it/agent/internal/history"
	"github.com/tailorcast/monitoring-agents-it/agent/internal/lock"
	"github.com/tailorcast/monitoring-agents-it/agent/internal/metrics"
	"github.com/tailorcast/monitoring-agents-it/agent/internal/schedule"
	"github.com/tailorcast/monitoring-agents-it/agent/internal/store"
)

const (
	runsRetained  = 50
	runsRetention = 7 * 24 * time.Hour
)

func init() {
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run monitoring cycles on the configured schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		l, err := lock.Acquire(cfg.Monitoring.LockPath())
		if err != nil {
			return err
		}
		defer l.Release() //nolint:errcheck

		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			return err
		}

		runs := store.New(runsRetained, runsRetention)
		go runs.Run(ctx)

		var current atomic.Pointer[config.Config]
		current.Store(cfg)

		sched, err := schedule.New(cfg.Monitoring.Schedule, func(ctx context.Context) {
			c := current.Load()
			if _, err := runCycle(ctx, c, runs, false, logger); err != nil {
				logger.Error("monitoring cycle failed", "err", err)
			}
		}, logger)
		if err != nil {
			return err
		}

		go func() {
			if err := config.Watch(ctx, configPath, func(updated *config.Config) {
				if err := sched.Reschedule(updated.Monitoring.Schedule); err != nil {
					logger.Error("config reload rejected", "err", err)
					return
				}
				current.Store(updated)
				logger.Info("config hot-reloaded", "targets", updated.Targets.Count(), "next_run", sched.Next())
			}); err != nil {
				logger.Error("config watcher stopped", "err", err)
			}
		}()

		var httpSrv *http.Server
		if cfg.Server.Enabled {
			historyPath := cfg.Monitoring.HistoryPath()
			httpSrv = &http.Server{
				Addr: cfg.Server.Addr,
				Handler: api.New(api.Options{
					Runs: runs,
					Incidents: api.IncidentsFunc(func() history.Snapshot {
						return history.ReadSnapshot(historyPath, history.WithLogger(logger))
					}),
					NextRun:    sched.Next,
					AuthMode:   cfg.Server.Auth.Mode,
					AuthHeader: cfg.Server.Auth.Header,
					AuthKey:    cfg.Server.Auth.Key(),
				}),
				ReadHeaderTimeout: 10 * time.Second,
			}
			go func() {
				logger.Info("status server listening", "addr", cfg.Server.Addr)
				if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("status server stopped", "err", err)
				}
			}()
		}

		sched.Start(ctx, cfg.Monitoring.StartImmediately())

		<-ctx.Done()
		logger.Info("shutting down")
		sched.Stop()
		if httpSrv != nil {
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancelShutdown()
			httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
		}
		return nil
	},
}

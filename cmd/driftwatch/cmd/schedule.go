package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clearclaim/driftwatch/internal/metrics"
	"github.com/clearclaim/driftwatch/internal/network"
	"github.com/clearclaim/driftwatch/internal/scheduler"
	"github.com/clearclaim/driftwatch/pkg/config"
)

// scheduleCmd runs continuous sweeps across all configured tenants.
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run continuous scheduled drift sweeps",
	Long: `Run the drift pipeline for every configured tenant on a fixed
interval, followed by the cross-tenant network scan. The alert rules
file, when configured, is watched and re-imported on change.

Example:
  driftwatch schedule --config driftwatch.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if len(cfg.Scheduler.Tenants) == 0 {
			return fmt.Errorf("scheduler.tenants is empty; nothing to schedule")
		}

		logger, err := buildLogger(cfg.Logging)
		if err != nil {
			return err
		}
		defer logger.Sync()

		store, err := openStorage(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		claimsStore, err := openClaims(cfg)
		if err != nil {
			return err
		}
		defer claimsStore.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cfg.Metrics.Enabled {
			metrics.SetBuildInfo(config.Version, config.Commit, config.BuildTime)
			metricsServer := metrics.NewServer(cfg.Metrics.Address, logger)
			go func() {
				if err := metricsServer.Start(); err != nil {
					logger.Error("metrics server failed", zap.Error(err))
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				metricsServer.Shutdown(shutdownCtx)
			}()
		}

		eng := buildEngine(cfg, store, claimsStore, logger)
		scanner := network.NewDetector(store.CrossTenantSignals(), store.NetworkAlerts(), store.Locks(), logger)
		sched := scheduler.New(cfg.Scheduler, eng, scanner, store.Rules(), logger)

		err = sched.Start(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}

package cmd

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clearclaim/driftwatch/internal/audit"
	"github.com/clearclaim/driftwatch/internal/claims"
	"github.com/clearclaim/driftwatch/internal/engine"
	"github.com/clearclaim/driftwatch/internal/notifier"
	"github.com/clearclaim/driftwatch/internal/storage"
)

var computeTenant string

// computeCmd runs the drift pipeline once for one tenant.
var computeCmd = &cobra.Command{
	Use:   "compute",
	Short: "Run the drift pipeline once for a tenant",
	Long: `Run one full drift computation for a tenant: window aggregation,
detection, scoring, alert evaluation, and dispatch.

Exits non-zero when the run fails. A run already in progress for the
tenant is reported as lock contention; retry later.

Example:
  driftwatch compute --tenant acme-billing`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
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

		eng := buildEngine(cfg, store, claimsStore, logger)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		res, err := eng.Run(ctx, computeTenant)
		if errors.Is(err, storage.ErrLockHeld) {
			return fmt.Errorf("a run for tenant %s is already in progress; retry later", computeTenant)
		}
		if err != nil {
			return err
		}

		fmt.Printf("run %s finished: %s\n", res.Run.ID, res.Run.Summary)
		if len(res.KeyErrors) > 0 {
			fmt.Printf("key errors:\n")
			for _, msg := range res.KeyErrors {
				fmt.Printf("  - %s\n", msg)
			}
		}
		return nil
	},
}

// buildEngine wires the engine with the configured dispatcher and audit log.
func buildEngine(cfg *Config, store storage.Storage, reader claims.Reader, logger *zap.Logger) *engine.Engine {
	dispatcher := notifier.NewDispatcherWithRateLimit(notifier.RateLimitConfig{
		MaxPerWindow: cfg.Notifications.MaxPerWindow,
		Window:       cfg.Notifications.Window,
		Enabled:      cfg.Notifications.RateLimit,
	})
	dispatcher.Register(notifier.NewLogNotifier(logger))

	return engine.New(store, reader, cfg.Detectors, cfg.Engine,
		dispatcher, audit.NewLogRecorder(logger), logger)
}

func init() {
	computeCmd.Flags().StringVarP(&computeTenant, "tenant", "t", "", "tenant id (required)")
	computeCmd.MarkFlagRequired("tenant")
	rootCmd.AddCommand(computeCmd)
}

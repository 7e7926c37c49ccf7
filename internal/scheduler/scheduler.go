// Package scheduler drives periodic drift computation sweeps across tenants
// and hot-reloads the alert rules file.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/clearclaim/driftwatch/internal/alerting"
	"github.com/clearclaim/driftwatch/internal/engine"
	"github.com/clearclaim/driftwatch/internal/models"
	"github.com/clearclaim/driftwatch/internal/storage"
)

// Runner executes one tenant's drift pipeline.
type Runner interface {
	Run(ctx context.Context, tenantID string) (*engine.RunResult, error)
}

// Scanner looks for cross-tenant network patterns.
type Scanner interface {
	Scan(ctx context.Context) ([]*models.NetworkAlert, error)
}

// Config holds scheduler settings.
type Config struct {
	Interval  time.Duration `yaml:"interval"`
	Tenants   []string      `yaml:"tenants"`
	RulesPath string        `yaml:"rules_path"`
}

// Scheduler sweeps all configured tenants on a fixed interval and runs the
// network scan after each sweep. When a rules file is configured it is
// watched and re-imported on change.
type Scheduler struct {
	cfg     Config
	runner  Runner
	scanner Scanner
	rules   storage.AlertRuleRepository
	logger  *zap.Logger
}

// New creates a scheduler.
func New(cfg Config, runner Runner, scanner Scanner, rules storage.AlertRuleRepository, logger *zap.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	return &Scheduler{
		cfg:     cfg,
		runner:  runner,
		scanner: scanner,
		rules:   rules,
		logger:  logger,
	}
}

// Start runs sweeps until the context is cancelled. Blocks.
func (s *Scheduler) Start(ctx context.Context) error {
	var watchEvents <-chan fsnotify.Event
	var watchErrors <-chan error

	if s.cfg.RulesPath != "" {
		if err := s.ReloadRules(ctx); err != nil {
			return fmt.Errorf("initial rules load: %w", err)
		}

		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("create rules watcher: %w", err)
		}
		defer watcher.Close()

		// Watch the directory, not the file: editors and config pushers
		// replace the file, which drops a file-level watch.
		if err := watcher.Add(filepath.Dir(s.cfg.RulesPath)); err != nil {
			return fmt.Errorf("watch rules dir: %w", err)
		}
		watchEvents = watcher.Events
		watchErrors = watcher.Errors
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Int("tenants", len(s.cfg.Tenants)))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()

		case <-ticker.C:
			s.Sweep(ctx)

		case ev := <-watchEvents:
			if ev.Name != s.cfg.RulesPath {
				continue
			}
			if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
				continue
			}
			if err := s.ReloadRules(ctx); err != nil {
				// Keep the previous rules; a broken file must not stop sweeps.
				s.logger.Error("rules reload failed", zap.Error(err))
			}

		case err := <-watchErrors:
			s.logger.Warn("rules watcher error", zap.Error(err))
		}
	}
}

// Sweep runs the pipeline for every configured tenant, then the network
// scan. Lock contention on a tenant is expected with multiple workers and is
// skipped quietly.
func (s *Scheduler) Sweep(ctx context.Context) {
	for _, tenant := range s.cfg.Tenants {
		if ctx.Err() != nil {
			return
		}
		res, err := s.runner.Run(ctx, tenant)
		switch {
		case errors.Is(err, storage.ErrLockHeld):
			s.logger.Info("tenant run already in progress", zap.String("tenant_id", tenant))
		case err != nil:
			s.logger.Error("tenant run failed", zap.String("tenant_id", tenant), zap.Error(err))
		default:
			s.logger.Info("tenant run finished",
				zap.String("tenant_id", tenant),
				zap.String("run_id", res.Run.ID),
				zap.Int("signals", res.Signals))
		}
	}

	alerts, err := s.scanner.Scan(ctx)
	switch {
	case errors.Is(err, storage.ErrLockHeld):
		s.logger.Info("network scan already in progress")
		return
	case err != nil:
		s.logger.Error("network scan failed", zap.Error(err))
		return
	}
	if len(alerts) > 0 {
		s.logger.Info("network scan finished", zap.Int("alerts", len(alerts)))
	}
}

// ReloadRules imports the rules file into the store. The (tenant, name)
// upsert makes repeated imports idempotent.
func (s *Scheduler) ReloadRules(ctx context.Context) error {
	rules, err := alerting.LoadRulesFromFile(s.cfg.RulesPath)
	if err != nil {
		return err
	}
	for _, rule := range rules {
		if err := s.rules.Upsert(ctx, rule); err != nil {
			return fmt.Errorf("upsert rule %q: %w", rule.Name, err)
		}
	}
	s.logger.Info("alert rules loaded",
		zap.String("path", s.cfg.RulesPath),
		zap.Int("count", len(rules)))
	return nil
}

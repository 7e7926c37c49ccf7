package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/clearclaim/driftwatch/internal/models"
	"github.com/clearclaim/driftwatch/internal/storage"
)

var (
	runsTenant   string
	runsLimit    int
	judgeAlertID string
	judgeVerdict string
)

// runsCmd groups run inspection and feedback commands.
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Run inspection and operator feedback commands",
	Long: `Commands for inspecting computation runs, their signals and alerts,
and recording operator verdicts on dispatched alerts.

Verdicts feed the suppression engine: a fingerprint whose recent
judgments are all noise stops being dispatched.

Examples:
  # List recent runs for a tenant
  driftwatch runs list --tenant acme-billing

  # List signals produced by a run
  driftwatch runs signals --tenant acme-billing <run-id>

  # Record a verdict on an alert
  driftwatch runs judge --alert <alert-id> --verdict noise`,
}

// runsListCmd lists recent runs for a tenant.
var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs for a tenant",
	RunE: func(cmd *cobra.Command, args []string) error {
		if runsTenant == "" {
			return fmt.Errorf("--tenant is required")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStorage(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		runs, err := store.Runs().List(cmd.Context(), runsTenant, runsLimit)
		if err != nil {
			return fmt.Errorf("list runs: %w", err)
		}

		if GetOutput() == "json" {
			data, _ := json.MarshalIndent(runs, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		if len(runs) == 0 {
			fmt.Println("No runs found.")
			return nil
		}

		fmt.Printf("\n%-36s  %-8s  %-16s  %s\n", "ID", "STATUS", "STARTED", "SUMMARY")
		fmt.Println(strings.Repeat("-", 100))
		for _, r := range runs {
			fmt.Printf("%-36s  %-8s  %-16s  %s\n",
				r.ID, r.Status, r.StartedAt.Format("2006-01-02 15:04"), r.Summary)
		}
		fmt.Printf("\nTotal: %d run(s)\n", len(runs))
		return nil
	},
}

// runsSignalsCmd lists the signals produced by a run.
var runsSignalsCmd = &cobra.Command{
	Use:   "signals <run-id>",
	Short: "List signals produced by a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if runsTenant == "" {
			return fmt.Errorf("--tenant is required")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStorage(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		sigs, err := store.Signals().ListByRun(cmd.Context(), runsTenant, args[0])
		if err != nil {
			return fmt.Errorf("list signals: %w", err)
		}

		if GetOutput() == "json" {
			data, _ := json.MarshalIndent(sigs, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		if len(sigs) == 0 {
			fmt.Println("No signals found.")
			return nil
		}

		fmt.Printf("\n%-36s  %-22s  %-20s  %-16s  %-10s  %-8s  %s\n",
			"ID", "TYPE", "PAYER", "PROC GROUP", "TREND", "SEVERITY", "DELTA")
		fmt.Println(strings.Repeat("-", 130))
		for _, s := range sigs {
			fmt.Printf("%-36s  %-22s  %-20s  %-16s  %-10s  %-8.3f  %+.4f\n",
				s.ID, s.Type, truncate(s.Key.Payer, 20), truncate(s.Key.ProcedureGroup, 16),
				s.Trend, s.Severity, s.Delta)
		}
		fmt.Printf("\nTotal: %d signal(s)\n", len(sigs))
		return nil
	},
}

// runsAlertsCmd lists recent candidate alerts for a tenant.
var runsAlertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "List recent candidate alerts for a tenant",
	RunE: func(cmd *cobra.Command, args []string) error {
		if runsTenant == "" {
			return fmt.Errorf("--tenant is required")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStorage(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		alerts, err := store.Alerts().List(cmd.Context(), runsTenant, runsLimit)
		if err != nil {
			return fmt.Errorf("list alerts: %w", err)
		}

		if GetOutput() == "json" {
			data, _ := json.MarshalIndent(alerts, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		if len(alerts) == 0 {
			fmt.Println("No alerts found.")
			return nil
		}

		fmt.Printf("\n%-36s  %-10s  %-22s  %-30s  %s\n",
			"ID", "STATUS", "TYPE", "ENTITY", "REASON")
		fmt.Println(strings.Repeat("-", 120))
		for _, a := range alerts {
			fmt.Printf("%-36s  %-10s  %-22s  %-30s  %s\n",
				a.ID, a.Status, a.Payload.SignalType,
				truncate(a.Payload.EntityLabel, 30), a.Reason)
		}
		fmt.Printf("\nTotal: %d alert(s)\n", len(alerts))
		return nil
	},
}

// runsJudgeCmd records an operator verdict on an alert.
var runsJudgeCmd = &cobra.Command{
	Use:   "judge",
	Short: "Record an operator verdict on an alert",
	Long: `Record whether a dispatched alert was a real drift or noise. The
judgment is appended to the alert's fingerprint history; three
consecutive noise verdicts suppress future alerts on that fingerprint.

Example:
  driftwatch runs judge --alert 4f1c... --verdict noise`,
	RunE: func(cmd *cobra.Command, args []string) error {
		verdict, err := models.ParseVerdict(judgeVerdict)
		if err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStorage(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := cmd.Context()
		alert, err := store.Alerts().GetByID(ctx, judgeAlertID)
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("alert not found: %s", judgeAlertID)
		}
		if err != nil {
			return fmt.Errorf("get alert: %w", err)
		}

		j := models.NewOperatorJudgment(alert.TenantID, alert.ID, alert.Fingerprint, verdict)
		if err := store.Judgments().Create(ctx, j); err != nil {
			return fmt.Errorf("record judgment: %w", err)
		}

		fmt.Printf("recorded %s verdict for alert %s (fingerprint %s)\n",
			verdict, alert.ID, alert.Fingerprint[:12])
		return nil
	},
}

// runsNetworkCmd lists recent payer-wide network alerts.
var runsNetworkCmd = &cobra.Command{
	Use:   "network",
	Short: "List recent payer-wide network alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStorage(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		alerts, err := store.NetworkAlerts().List(cmd.Context(), runsLimit)
		if err != nil {
			return fmt.Errorf("list network alerts: %w", err)
		}

		if GetOutput() == "json" {
			data, _ := json.MarshalIndent(alerts, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		if len(alerts) == 0 {
			fmt.Println("No network alerts found.")
			return nil
		}

		fmt.Printf("\n%-36s  %-20s  %-22s  %-8s  %s\n",
			"ID", "PAYER", "TYPE", "TENANTS", "CREATED")
		fmt.Println(strings.Repeat("-", 100))
		for _, a := range alerts {
			fmt.Printf("%-36s  %-20s  %-22s  %-8d  %s\n",
				a.ID, truncate(a.Payer, 20), a.Type, a.TenantCount,
				a.CreatedAt.Format("2006-01-02 15:04"))
		}
		fmt.Printf("\nTotal: %d alert(s)\n", len(alerts))
		return nil
	},
}

func init() {
	runsCmd.PersistentFlags().StringVarP(&runsTenant, "tenant", "t", "", "tenant id")
	runsCmd.PersistentFlags().IntVarP(&runsLimit, "limit", "n", 20, "maximum rows to return")

	runsJudgeCmd.Flags().StringVar(&judgeAlertID, "alert", "", "alert id (required)")
	runsJudgeCmd.Flags().StringVar(&judgeVerdict, "verdict", "", "real or noise (required)")
	runsJudgeCmd.MarkFlagRequired("alert")
	runsJudgeCmd.MarkFlagRequired("verdict")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsSignalsCmd)
	runsCmd.AddCommand(runsAlertsCmd)
	runsCmd.AddCommand(runsJudgeCmd)
	runsCmd.AddCommand(runsNetworkCmd)
	rootCmd.AddCommand(runsCmd)
}

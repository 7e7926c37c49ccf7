package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/clearclaim/driftwatch/internal/alerting"
)

var rulesTenant string

// rulesCmd groups alert rule management commands.
var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Alert rule management commands",
	Long: `Commands for validating, importing, and inspecting alert rules.

Rules are defined in a YAML file and imported into the state store.
Import is idempotent: a rule with the same (tenant, name) is updated in
place rather than duplicated.

Examples:
  # Validate a rules file without touching the store
  driftwatch rules validate rules.yaml

  # Import rules into the store
  driftwatch rules import rules.yaml

  # List a tenant's rules
  driftwatch rules list --tenant acme-billing`,
}

// rulesValidateCmd validates a rules file.
var rulesValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Validate an alert rules file",
	Long: `Parse and validate a rules YAML file. Exits non-zero if any rule
is invalid; nothing is written to the store.

Example:
  driftwatch rules validate rules.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rules, err := alerting.LoadRulesFromFile(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d rule(s) valid\n", args[0], len(rules))
		return nil
	},
}

// rulesImportCmd imports a rules file into the store.
var rulesImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import alert rules into the state store",
	Long: `Load a rules YAML file and upsert every rule into the state store.
A single invalid rule fails the whole import; a partial import never
happens.

Example:
  driftwatch rules import rules.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rules, err := alerting.LoadRulesFromFile(args[0])
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
		for _, rule := range rules {
			if err := store.Rules().Upsert(ctx, rule); err != nil {
				return fmt.Errorf("import rule %q: %w", rule.Name, err)
			}
		}
		fmt.Printf("imported %d rule(s) from %s\n", len(rules), args[0])
		return nil
	},
}

// rulesListCmd lists a tenant's rules.
var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a tenant's alert rules",
	Long: `List every alert rule configured for a tenant.

Example:
  driftwatch rules list --tenant acme-billing`,
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

		rules, err := store.Rules().List(cmd.Context(), rulesTenant)
		if err != nil {
			return fmt.Errorf("list rules: %w", err)
		}

		if GetOutput() == "json" {
			data, _ := json.MarshalIndent(rules, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		if len(rules) == 0 {
			fmt.Println("No rules found.")
			return nil
		}

		fmt.Printf("\n%-36s  %-24s  %-14s  %-4s  %-10s  %-8s  %s\n",
			"ID", "NAME", "METRIC", "OP", "THRESHOLD", "ENABLED", "SEVERITY")
		fmt.Println(strings.Repeat("-", 110))
		for _, r := range rules {
			fmt.Printf("%-36s  %-24s  %-14s  %-4s  %-10.4f  %-8t  %s\n",
				r.ID, truncate(r.Name, 24), r.Metric, r.Operator,
				r.Threshold, r.Enabled, r.SeverityLabel)
		}
		fmt.Printf("\nTotal: %d rule(s)\n", len(rules))
		return nil
	},
}

func init() {
	rulesListCmd.Flags().StringVarP(&rulesTenant, "tenant", "t", "", "tenant id (required)")
	rulesListCmd.MarkFlagRequired("tenant")

	rulesCmd.AddCommand(rulesValidateCmd)
	rulesCmd.AddCommand(rulesImportCmd)
	rulesCmd.AddCommand(rulesListCmd)
	rootCmd.AddCommand(rulesCmd)
}

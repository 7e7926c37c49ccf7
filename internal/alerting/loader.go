package alerting

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/clearclaim/driftwatch/internal/models"
)

// RulesFile is the on-disk YAML shape for alert rule import.
type RulesFile struct {
	Rules []*models.AlertRule `yaml:"rules"`
}

// LoadRulesFromFile loads alert rules from a YAML file.
func LoadRulesFromFile(path string) ([]*models.AlertRule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open rules file: %w", err)
	}
	defer f.Close()

	return LoadRules(f)
}

// LoadRules loads alert rules from a reader. Every rule is validated; a
// single bad rule fails the whole load so a partial import never happens.
func LoadRules(r io.Reader) ([]*models.AlertRule, error) {
	var file RulesFile
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse rules YAML: %w", err)
	}

	now := time.Now().UTC()
	for i, rule := range file.Rules {
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("invalid rule at index %d: %w", i, err)
		}
		// The YAML shape carries no identity; imported rules get fresh ids
		// and the store's (tenant, name) upsert keeps re-imports idempotent.
		rule.ID = uuid.New().String()
		rule.CreatedAt = now
		rule.UpdatedAt = now
	}

	return file.Rules, nil
}

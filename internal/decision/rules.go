package decision

import (
	"errors"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/riskstack/riskmodel/internal/models"
	"github.com/riskstack/riskmodel/internal/utils"
)

// RuleSet appends business guidance to a decision when the selected score
// falls in a configured band.
type RuleSet struct {
	rules  []Rule
	logger *slog.Logger
}

// Rule represents a single impact rule.
type Rule struct {
	ID              string    `yaml:"id"`
	Match           RuleMatch `yaml:"match"`
	Recommendations []string  `yaml:"recommendations"`
}

// RuleMatch defines optional attributes for rule matching. Bounds are
// inclusive; nil bounds are open.
type RuleMatch struct {
	TaskType string   `yaml:"task_type"`
	Task     string   `yaml:"task"`
	MinScore *float64 `yaml:"min_score"`
	MaxScore *float64 `yaml:"max_score"`
}

// RuleConfigFile is the YAML root structure.
type RuleConfigFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules loads rules from the provided path. An empty path or a missing
// file yields a nil RuleSet, which matches nothing.
func LoadRules(path string, logger *slog.Logger) (*RuleSet, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, utils.NewAppError("decision.LoadRules", utils.ErrIO, path, err)
	}
	var cfg RuleConfigFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, utils.NewAppError("decision.LoadRules", utils.ErrInvalidInput, path, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	for _, rule := range cfg.Rules {
		if rule.Match.TaskType != "" {
			if _, err := models.ParseTaskType(rule.Match.TaskType); err != nil {
				return nil, utils.InvalidInput("decision.LoadRules", "rule %q: unsupported task_type %q", rule.ID, rule.Match.TaskType)
			}
		}
	}
	return &RuleSet{rules: cfg.Rules, logger: logger}, nil
}

// Len reports the number of loaded rules.
func (r *RuleSet) Len() int {
	if r == nil {
		return 0
	}
	return len(r.rules)
}

// Recommend returns the recommendations of every matching rule, in file order
// and without duplicates. taskName may be empty.
func (r *RuleSet) Recommend(taskName string, task models.TaskType, score float64) []string {
	if r == nil {
		return nil
	}

	matched := make([]string, 0)
	for _, rule := range r.rules {
		if rule.Match.TaskType != "" && !strings.EqualFold(rule.Match.TaskType, string(task)) {
			continue
		}
		if rule.Match.Task != "" && !strings.EqualFold(rule.Match.Task, taskName) {
			continue
		}
		if rule.Match.MinScore != nil && score < *rule.Match.MinScore {
			continue
		}
		if rule.Match.MaxScore != nil && score > *rule.Match.MaxScore {
			continue
		}
		r.logger.Debug("impact rule matched", slog.String("rule", rule.ID), slog.Float64("score", score))
		matched = appendUnique(matched, rule.Recommendations...)
	}
	return matched
}

func appendUnique(existing []string, additions ...string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, rec := range existing {
		seen[rec] = struct{}{}
	}
	for _, item := range additions {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		existing = append(existing, item)
		seen[item] = struct{}{}
	}
	return existing
}

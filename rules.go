package blobcast

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
)

// RuleSet is the filter rule configuration loaded from the --rules flag.
// Rules are evaluated first-match-wins; a matching rule with skip: true
// suppresses forwarding of the notification.
type RuleSet struct {
	Rules []*Rule `yaml:"rules"`

	env *CELEnv
}

// Rule defines when a notification matches and whether it is skipped.
// When is a CEL expression (or static bool) over the rule target.
type Rule struct {
	When ExprOrBool `yaml:"when"`
	Skip bool       `yaml:"skip,omitempty"`
}

// LoadRuleSet loads and validates a rule set from a YAML file path.
// The path may be local, https:// or s3://.
func LoadRuleSet(path string, env *CELEnv) (*RuleSet, error) {
	content, err := fetchConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rules file: %w", err)
	}
	return ParseRuleSet(content, env)
}

// LoadRuleSetFile loads a rule set from a local file.
func LoadRuleSetFile(path string, env *CELEnv) (*RuleSet, error) {
	cleanPath := filepath.Clean(path)
	f, err := os.Open(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open rules file: %w", err)
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return ParseRuleSet(content, env)
}

// ParseRuleSet parses and validates a rule set.
func ParseRuleSet(content []byte, env *CELEnv) (*RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(content, &rs); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	if err := rs.Bind(env); err != nil {
		return nil, err
	}
	return &rs, nil
}

// Bind validates and binds CEL expressions in the rule set.
func (rs *RuleSet) Bind(env *CELEnv) error {
	if len(rs.Rules) == 0 {
		return fmt.Errorf("at least one rule is required")
	}
	for i, rule := range rs.Rules {
		if rule.When.Raw() == "" {
			return fmt.Errorf("rule[%d]: when is required", i)
		}
		if err := rule.When.Bind(env); err != nil {
			return fmt.Errorf("rule[%d].when: %w", i, err)
		}
	}
	rs.env = env
	return nil
}

// Match finds the first matching rule for the given target.
// Returns nil if no rule matches.
func (rs *RuleSet) Match(target *RuleTarget) (*Rule, error) {
	for _, rule := range rs.Rules {
		matched, err := rule.When.Eval(rs.env, target)
		if err != nil {
			return nil, err
		}
		if matched {
			return rule, nil
		}
	}
	return nil, nil
}

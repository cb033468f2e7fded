package safety

import (
	"fmt"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// LoadRules reads a rule set from a YAML file. Fields omitted in the file
// fall back to the built-in defaults, so an override file only needs to list
// what it changes. It uses an afero.Fs so tests can supply an in-memory
// filesystem.
func LoadRules(fs afero.Fs, path string) (RuleSet, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return RuleSet{}, fmt.Errorf("read rules file: %w", err)
	}

	rules := DefaultRuleSet()
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return RuleSet{}, fmt.Errorf("parse rules file %s: %w", path, err)
	}
	if err := rules.Validate(); err != nil {
		return RuleSet{}, fmt.Errorf("rules file %s: %w", path, err)
	}
	return rules, nil
}

// LoadRulesOrDefault loads rules from path when it exists and falls back to
// the built-in defaults when it does not. A present but malformed file is
// still an error.
func LoadRulesOrDefault(fs afero.Fs, path string) (RuleSet, error) {
	if path == "" {
		return DefaultRuleSet(), nil
	}
	exists, err := afero.Exists(fs, path)
	if err != nil {
		return RuleSet{}, fmt.Errorf("check rules file: %w", err)
	}
	if !exists {
		return DefaultRuleSet(), nil
	}
	return LoadRules(fs, path)
}

// Package config defines the application configuration schema shared by the
// CLI and the core components.
package config

import (
	"github.com/hivemindhq/hivemind/internal/llm"
	"github.com/hivemindhq/hivemind/internal/ratelimit"
)

// AppConfig is the root configuration, populated by viper from file,
// environment and flags, then validated before use.
type AppConfig struct {
	Verbose bool `mapstructure:"verbose"`

	LLM    llm.Config       `mapstructure:"llm"`
	Safety SafetyConfig     `mapstructure:"safety"`
	Limits ratelimit.Config `mapstructure:"limits" validate:"required"`
	Audit  AuditConfig      `mapstructure:"audit" validate:"required"`
}

// SafetyConfig controls the admission gatekeeper's rule set.
type SafetyConfig struct {
	// RulesFile is an optional YAML overlay for the built-in rule set.
	RulesFile string `mapstructure:"rulesFile"`
	// WatchRules reloads RulesFile on change while the process runs.
	WatchRules bool `mapstructure:"watchRules"`
}

// AuditConfig controls the durable audit log store.
type AuditConfig struct {
	// Path is the directory holding audit.db.
	Path          string `mapstructure:"path" validate:"required"`
	RetentionDays int    `mapstructure:"retentionDays" validate:"min=1"`
}

// Default returns the stock configuration.
func Default() AppConfig {
	return AppConfig{
		Limits: ratelimit.DefaultConfig(),
		Audit: AuditConfig{
			Path:          ".hivemind",
			RetentionDays: 30,
		},
	}
}

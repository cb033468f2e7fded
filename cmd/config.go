package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hivemindhq/hivemind/internal/config"
)

const (
	configName = ".hivemind"
	envPrefix  = "HIVEMIND"
)

// GlobalAppConfig holds the global application configuration instance.
var GlobalAppConfig config.AppConfig

// validate is a single validator instance; it caches struct info.
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// InitConfig reads in config file and ENV variables if set.
func InitConfig() {
	// Load .env first if present. A missing file is fine.
	_ = godotenv.Load()

	viper.SetEnvPrefix(envPrefix)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if cfgFileFlag := viper.GetString("config"); cfgFileFlag != "" {
		viper.SetConfigFile(cfgFileFlag)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)
		viper.AddConfigPath(".")
		viper.AddConfigPath(home)
		viper.SetConfigName(configName)
	}

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	} else if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
		fmt.Fprintln(os.Stderr, "Error reading config file:", viper.ConfigFileUsed(), "-", err)
	}

	defaults := config.Default()
	viper.SetDefault("audit.path", defaults.Audit.Path)
	viper.SetDefault("audit.retentionDays", defaults.Audit.RetentionDays)
	viper.SetDefault("limits.hourlyMessageCap", defaults.Limits.HourlyMessageCap)
	viper.SetDefault("limits.messageWindow", defaults.Limits.MessageWindow)
	viper.SetDefault("limits.dailyMentionCap", defaults.Limits.DailyMentionCap)
	viper.SetDefault("limits.failureThreshold", defaults.Limits.FailureThreshold)
	viper.SetDefault("limits.dailyTokenQuota", defaults.Limits.DailyTokenQuota)
	viper.SetDefault("safety.rulesFile", "")
	viper.SetDefault("safety.watchRules", false)
	viper.SetDefault("llm.openaiApiKey", "")
	viper.SetDefault("llm.anthropicApiKey", "")

	if err := viper.Unmarshal(&GlobalAppConfig); err != nil {
		fmt.Fprintf(os.Stderr, "Error unmarshaling config: %s\n", err)
		os.Exit(1)
	}

	if err := validate.Struct(&GlobalAppConfig); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration validation error: %s\n", err)
		os.Exit(1)
	}
}

// GetConfig returns a pointer to the global config.AppConfig instance.
func GetConfig() *config.AppConfig {
	return &GlobalAppConfig
}

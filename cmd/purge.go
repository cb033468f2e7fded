package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hivemindhq/hivemind/internal/audit"
)

var purgeDays int

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete audit records older than the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		days := purgeDays
		if days <= 0 {
			days = GetConfig().Audit.RetentionDays
		}

		store, err := audit.NewStore(GetConfig().Audit.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		cutoff := time.Now().UTC().AddDate(0, 0, -days)
		if err := store.PurgeOlderThan(cutoff); err != nil {
			return err
		}
		fmt.Printf("Purged audit records older than %d days (before %s).\n",
			days, cutoff.Format("2006-01-02"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(purgeCmd)
	purgeCmd.Flags().IntVar(&purgeDays, "days", 0, "retention window in days (default from config)")
}

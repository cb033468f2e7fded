package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hivemindhq/hivemind/internal/audit"
)

var statusCmd = &cobra.Command{
	Use:   "status <task-id>",
	Short: "Show the audit trail recorded for a task",
	Long: `Show what the audit log recorded for a task id: every stage completion,
safety block and rate-limit denial, most recent first.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := audit.NewStore(GetConfig().Audit.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		entries, err := store.TaskLog(args[0], 100)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return fmt.Errorf("no audit entries for task %s", args[0])
		}

		for _, e := range entries {
			printEntry(e)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

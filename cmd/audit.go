package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hivemindhq/hivemind/internal/audit"
)

var (
	auditTask  string
	auditAgent string
	auditLimit int
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "List audit log entries",
	Long: `List audit log entries, newest first. Filter by task id or agent type.

Examples:
  hivemind audit --limit 20
  hivemind audit --task task-1a2b3c4d5e6f
  hivemind audit --agent elon`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := audit.NewStore(GetConfig().Audit.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		entries, err := store.List(audit.Filter{
			TaskID:    auditTask,
			AgentType: auditAgent,
			Limit:     auditLimit,
		})
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No audit entries.")
			return nil
		}

		for _, e := range entries {
			printEntry(e)
		}
		return nil
	},
}

func printEntry(e audit.Entry) {
	outcome := "ok"
	if !e.Success {
		outcome = "denied"
	}
	fmt.Printf("#%d %s [%s] %s %s (%s) %s\n",
		e.ID, e.Timestamp.Format("2006-01-02 15:04:05"), e.Severity,
		e.AgentType, e.Action, outcome, e.Details)
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.Flags().StringVar(&auditTask, "task", "", "filter by task id")
	auditCmd.Flags().StringVar(&auditAgent, "agent", "", "filter by agent type")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 50, "maximum entries to list")
}

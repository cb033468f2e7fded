package cmd

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/hivemindhq/hivemind/internal/audit"
	"github.com/hivemindhq/hivemind/internal/safety"
)

var (
	safetyLimit      int
	safetyUnresolved bool
	safetyStats      bool
)

var safetyCmd = &cobra.Command{
	Use:   "safety",
	Short: "Show recent safety events and the active rule set",
	Long: `Show safety events recorded by the gatekeeper and rate limiter, newest
first. With --stats, print a summary of the active rule set instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		if safetyStats {
			rules, err := safety.LoadRulesOrDefault(afero.NewOsFs(), cfg.Safety.RulesFile)
			if err != nil {
				return err
			}
			fmt.Printf("Rule set:             %s\n", rules.Version)
			fmt.Printf("Coercive patterns:    %d\n", len(rules.Coercive))
			fmt.Printf("Destructive patterns: %d\n", len(rules.Destructive))
			fmt.Printf("Goal verbs:           %d\n", len(rules.GoalVerbs))
			fmt.Printf("Greetings:            %d\n", len(rules.Greetings))
			fmt.Printf("Max task length:      %d runes\n", rules.MaxTaskRunes)
			return nil
		}

		store, err := audit.NewStore(cfg.Audit.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		var resolved *bool
		if safetyUnresolved {
			f := false
			resolved = &f
		}
		events, err := store.RecentSafetyEvents(safetyLimit, resolved)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Println("No safety events.")
			return nil
		}

		for _, e := range events {
			state := "open"
			if e.Resolved {
				state = "resolved"
			}
			fmt.Printf("#%d %s %s (%s) task=%s %s\n",
				e.ID, e.Timestamp.Format("2006-01-02 15:04:05"),
				e.EventType, state, e.TaskID, e.Details)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(safetyCmd)
	safetyCmd.Flags().IntVar(&safetyLimit, "limit", 20, "maximum events to list")
	safetyCmd.Flags().BoolVar(&safetyUnresolved, "unresolved", false, "only show unresolved events")
	safetyCmd.Flags().BoolVar(&safetyStats, "stats", false, "print a rule set summary")
}

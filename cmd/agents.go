package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hivemindhq/hivemind/internal/agent"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List the named agents and their pipelines",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, t := range agent.AllTypes() {
			cfg, _ := agent.ConfigFor(t)
			stages, _ := agent.PipelineFor(t)

			names := make([]string, len(stages))
			for i, s := range stages {
				names[i] = s.Name
			}

			fmt.Printf("%s (%s)\n", cfg.Name, t)
			fmt.Printf("  role:         %s\n", cfg.Role)
			fmt.Printf("  capabilities: %s\n", strings.Join(cfg.Capabilities, ", "))
			fmt.Printf("  pipeline:     %s\n", strings.Join(names, " -> "))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(agentsCmd)
}

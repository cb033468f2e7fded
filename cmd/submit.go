package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hivemindhq/hivemind/internal/agent"
)

var submitAgent string

var submitCmd = &cobra.Command{
	Use:   "submit <message>",
	Short: "Submit a task to an agent and wait for the outcome",
	Long: `Submit a task message to one of the named agents. The task passes the
safety gatekeeper and rate limiter before its pipeline runs; the command
waits for the terminal state and prints the result.

Examples:
  hivemind submit --agent elon "优化系统性能"
  hivemind submit --agent henry "research community sentiment"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		agentType, err := agent.ParseType(submitAgent)
		if err != nil {
			return err
		}

		c, err := buildCore()
		if err != nil {
			return err
		}
		defer c.close()

		taskID, err := c.registry.Submit(context.Background(), agentType, strings.Join(args, " "))
		if err != nil {
			return err
		}
		c.registry.Wait()

		st, ok := c.registry.Get(taskID)
		if !ok {
			return fmt.Errorf("task %s vanished from registry", taskID)
		}

		fmt.Printf("Task:     %s\n", st.TaskID)
		fmt.Printf("Agent:    %s\n", st.AgentType)
		fmt.Printf("Status:   %s\n", st.Status)
		fmt.Printf("Progress: %d%%\n", st.Progress)
		if st.Error != "" {
			fmt.Printf("Reason:   %s\n", st.Error)
		}
		if len(st.StageOutputs) > 0 {
			stages, _ := agent.PipelineFor(st.AgentType)
			fmt.Println("\nStage outputs:")
			for _, stage := range stages {
				out, ok := st.StageOutputs[stage.Name]
				if !ok {
					continue
				}
				fmt.Printf("--- %s ---\n%s\n", stage.Name, out)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(submitCmd)
	submitCmd.Flags().StringVarP(&submitAgent, "agent", "a", string(agent.TypeEcho), "agent type (echo, elon, henry)")
}

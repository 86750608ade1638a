package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel [workflow_id]",
	Short: "Cancel a running workflow",
	Long: `Cancel a workflow cooperatively. Queued nodes are removed, executing nodes
are stopped at the next safe point, and already-committed nodes are compensated
in reverse order.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		url := viper.GetString("url")
		token := viper.GetString("token")

		if token == "" {
			cmd.Println("API token not found. Please set it using the --token flag or the FLOWPLANE_TOKEN environment variable")
			return
		}

		client := NewPlaneClient(url, token)
		if err := client.CancelWorkflow(args[0]); err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Cancel failed (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Cancel failed: %v\n", err)
			}
			return
		}
		cmd.Printf("✓ Cancellation requested for %s\n", args[0])
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume [workflow_id]",
	Short: "Resume a workflow waiting in human review",
	Long: `Apply an operator decision to a workflow suspended in HUMAN_REVIEW.

Decisions:
  retry       re-run the failed node with a fresh attempt budget (default)
  compensate  give up and roll back committed work

Example:
  flowctl resume 4f7c... --decision compensate`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		decision, _ := cmd.Flags().GetString("decision")

		url := viper.GetString("url")
		token := viper.GetString("token")

		if token == "" {
			cmd.Println("API token not found. Please set it using the --token flag or the FLOWPLANE_TOKEN environment variable")
			return
		}

		client := NewPlaneClient(url, token)
		if err := client.ResumeWorkflow(args[0], decision); err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Resume failed (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Resume failed: %v\n", err)
			}
			return
		}
		cmd.Printf("✓ Workflow %s resumed\n", args[0])
	},
}

func init() {
	resumeCmd.Flags().StringP("decision", "d", "retry", "Review decision: retry or compensate")

	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(resumeCmd)
}

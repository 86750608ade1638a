package cmd

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"flowplane/pkg/api"
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a workflow graph for execution",
	Long: `Submit a workflow graph (DAG) from a JSON file and start executing it.

The file holds the node and edge definitions:

  {
    "nodes": [
      {"id": "migrate", "kind": "tool", "priority": 0, "compensation_id": "rollback"},
      {"id": "deploy",  "kind": "tool", "priority": 1, "max_attempts": 3},
      {"id": "rollback", "kind": "compensation"}
    ],
    "edges": [{"from": "migrate", "to": "deploy"}]
  }

Example:
  flowctl submit --file deploy.json`,
	Run: func(cmd *cobra.Command, args []string) {
		file, _ := cmd.Flags().GetString("file")

		url := viper.GetString("url")
		token := viper.GetString("token")

		if token == "" {
			cmd.Println("API token not found. Please set it using the --token flag or the FLOWPLANE_TOKEN environment variable")
			return
		}
		if file == "" {
			cmd.Println("Error: --file is required")
			return
		}

		data, err := os.ReadFile(file)
		if err != nil {
			cmd.Printf("Failed to read graph file: %v\n", err)
			return
		}
		var req api.SubmitWorkflowRequest
		if err := json.Unmarshal(data, &req); err != nil {
			cmd.Printf("Invalid graph file: %v\n", err)
			return
		}

		client := NewPlaneClient(url, token)
		result, err := client.SubmitWorkflow(req)
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Submit failed (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Submit failed: %v\n", err)
			}
			return
		}

		cmd.Printf("✓ Workflow submitted!\nWorkflow ID: %s\nState: %s\n", result.WorkflowID, result.State)
	},
}

func init() {
	submitCmd.Flags().StringP("file", "f", "", "Path to the workflow graph JSON file (required)")

	rootCmd.AddCommand(submitCmd)
}

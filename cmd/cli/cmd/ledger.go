package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"flowplane/pkg/api"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect the tamper-evident execution ledger",
}

var ledgerVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify your ledger chain integrity",
	Long: `Recompute your tenant's hash chain and signatures over a sequence range.
A valid result proves no recorded transition was altered, removed or reordered.`,
	Run: func(cmd *cobra.Command, args []string) {
		from, _ := cmd.Flags().GetUint64("from")
		to, _ := cmd.Flags().GetUint64("to")

		client, ok := authedClient(cmd)
		if !ok {
			return
		}

		res, err := client.VerifyLedger(from, to)
		if err != nil {
			printAPIError(cmd, "Verify", err)
			return
		}

		if res.Valid {
			cmd.Printf("%s✓ Ledger valid%s (%d entries checked)\n", colorGreen, colorReset, res.Checked)
			return
		}
		cmd.Printf("%s✗ Ledger CORRUPTED%s at seq %d: %s (%d entries checked)\n",
			colorRed, colorReset, res.CorruptedAt, res.Reason, res.Checked)
	},
}

var ledgerReplayCmd = &cobra.Command{
	Use:   "replay [workflow_id]",
	Short: "Replay a workflow's transition history from the ledger",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client, ok := authedClient(cmd)
		if !ok {
			return
		}

		history, err := client.ReplayWorkflow(args[0])
		if err != nil {
			printAPIError(cmd, "Replay", err)
			return
		}

		cmd.Printf("%sWorkflow %s%s replayed to %s\n", colorBold, history.WorkflowID, colorReset, colorizeState(history.WorkflowState))
		for _, s := range history.Steps {
			printStep(cmd, s)
		}
		if history.PartiallyCompensated {
			cmd.Printf("%srollback was partial%s\n", colorRed, colorReset)
		}
	},
}

var ledgerSimulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Print the expected trace of a graph without executing it",
	Run: func(cmd *cobra.Command, args []string) {
		file, _ := cmd.Flags().GetString("file")
		if file == "" {
			cmd.Println("Error: --file is required")
			return
		}

		client, ok := authedClient(cmd)
		if !ok {
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

		res, err := client.SimulateGraph(req)
		if err != nil {
			printAPIError(cmd, "Simulate", err)
			return
		}
		for _, s := range res.Steps {
			printStep(cmd, s)
		}
	},
}

var ledgerDiffCmd = &cobra.Command{
	Use:   "diff [workflow_a] [workflow_b]",
	Short: "Compare the replayed histories of two workflows",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		client, ok := authedClient(cmd)
		if !ok {
			return
		}

		res, err := client.DiffWorkflows(args[0], args[1])
		if err != nil {
			printAPIError(cmd, "Diff", err)
			return
		}

		if res.Identical {
			cmd.Printf("%s✓ Traces are identical%s\n", colorGreen, colorReset)
			return
		}
		cmd.Printf("%s✗ Traces diverge at %d position(s)%s\n", colorRed, len(res.Divergences), colorReset)
		for _, d := range res.Divergences {
			cmd.Printf("position %d:\n", d.Position)
			cmd.Printf("  a: %s\n", formatStep(d.A))
			cmd.Printf("  b: %s\n", formatStep(d.B))
		}
	},
}

var ledgerEntriesCmd = &cobra.Command{
	Use:   "entries",
	Short: "List your raw ledger entries",
	Run: func(cmd *cobra.Command, args []string) {
		from, _ := cmd.Flags().GetUint64("from")
		to, _ := cmd.Flags().GetUint64("to")

		client, ok := authedClient(cmd)
		if !ok {
			return
		}

		res, err := client.ListLedgerEntries(from, to)
		if err != nil {
			printAPIError(cmd, "List", err)
			return
		}
		for _, e := range res.Entries {
			node := e.NodeID
			if node == "" {
				node = "(workflow)"
			}
			cmd.Printf("%6d  %-22s %-12s -> %-12s %s\n", e.Seq, node, e.From, e.To, e.Reason)
		}
	},
}

func authedClient(cmd *cobra.Command) (*PlaneClient, bool) {
	url := viper.GetString("url")
	token := viper.GetString("token")
	if token == "" {
		cmd.Println("API token not found. Please set it using the --token flag or the FLOWPLANE_TOKEN environment variable")
		return nil, false
	}
	return NewPlaneClient(url, token), true
}

func printAPIError(cmd *cobra.Command, op string, err error) {
	if apiErr, ok := err.(*APIError); ok {
		cmd.Printf("%s failed (%d): %s\n", op, apiErr.StatusCode, apiErr.Message)
		return
	}
	cmd.Printf("%s failed: %v\n", op, err)
}

func printStep(cmd *cobra.Command, s api.StepView) {
	cmd.Println(formatStep(&s))
}

func formatStep(s *api.StepView) string {
	if s == nil {
		return "(absent)"
	}
	node := s.NodeID
	if node == "" {
		node = "(workflow)"
	}
	out := fmt.Sprintf("%-22s %-12s -> %-12s", node, s.From, s.To)
	if s.Attempt > 0 {
		out += fmt.Sprintf("  attempt %d", s.Attempt)
	}
	if s.Reason != "" {
		out += "  " + s.Reason
	}
	return out
}

func init() {
	ledgerVerifyCmd.Flags().Uint64("from", 0, "First sequence number to verify")
	ledgerVerifyCmd.Flags().Uint64("to", 0, "Last sequence number to verify (0 = chain head)")
	ledgerEntriesCmd.Flags().Uint64("from", 0, "First sequence number to list")
	ledgerEntriesCmd.Flags().Uint64("to", 0, "Last sequence number to list (0 = chain head)")
	ledgerSimulateCmd.Flags().StringP("file", "f", "", "Path to the workflow graph JSON file (required)")

	ledgerCmd.AddCommand(ledgerVerifyCmd)
	ledgerCmd.AddCommand(ledgerReplayCmd)
	ledgerCmd.AddCommand(ledgerSimulateCmd)
	ledgerCmd.AddCommand(ledgerDiffCmd)
	ledgerCmd.AddCommand(ledgerEntriesCmd)
	rootCmd.AddCommand(ledgerCmd)
}

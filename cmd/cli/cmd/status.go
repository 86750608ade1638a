package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"flowplane/pkg/api"
)

var statusCmd = &cobra.Command{
	Use:   "status [workflow_id]",
	Short: "Get status of a workflow",
	Long:  `Retrieve the live snapshot of a workflow: its state, every node's progress and attempt counts, the commit order, and any incomplete-rollback flags.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		workflowID := args[0]

		url := viper.GetString("url")
		token := viper.GetString("token")

		if token == "" {
			cmd.Println("API token not found. Please set it using the --token flag or the FLOWPLANE_TOKEN environment variable")
			return
		}

		client := NewPlaneClient(url, token)
		wf, err := client.GetWorkflow(workflowID)
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Request failed (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Request failed: %v\n", err)
			}
			return
		}

		printStatus(cmd, wf)
	},
}

func printStatus(cmd *cobra.Command, wf *api.WorkflowStatusResponse) {
	icon := statusIcon(wf.State)
	cmd.Printf("%s %sWorkflow Details%s\n", icon, colorBold, colorReset)
	cmd.Println("──────────────────────────────")

	cmd.Printf("%sID:%s          %s\n", colorDim, colorReset, wf.WorkflowID)
	cmd.Printf("%sState:%s       %s\n", colorDim, colorReset, colorizeState(wf.State))
	cmd.Printf("%sCreated:%s     %s\n", colorDim, colorReset, formatTimeWithRelative(wf.CreatedAt))
	cmd.Printf("%sUpdated:%s     %s\n", colorDim, colorReset, formatTimeWithRelative(wf.UpdatedAt))

	if wf.ReviewNode != "" {
		cmd.Printf("%sReview:%s      %s%s needs an operator decision%s\n", colorDim, colorReset, colorYellow, wf.ReviewNode, colorReset)
	}
	if wf.PartiallyCompensated {
		cmd.Printf("%sRollback:%s    %spartially compensated%s\n", colorDim, colorReset, colorRed, colorReset)
	}
	for _, nodeID := range wf.Uncompensated {
		cmd.Printf("%sManual fix:%s  %s has no compensation handler\n", colorDim, colorReset, nodeID)
	}

	cmd.Println()
	cmd.Printf("%sNodes:%s\n", colorBold, colorReset)
	for _, n := range wf.Nodes {
		attempts := ""
		if n.Attempts > 1 {
			attempts = fmt.Sprintf(" %s(attempt %d)%s", colorDim, n.Attempts, colorReset)
		}
		cmd.Printf("  %s %-20s %s%s\n", statusIcon(n.State), n.NodeID, colorizeState(n.State), attempts)
	}
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

func statusIcon(state string) string {
	switch state {
	case "COMMITTED", "COMPENSATED":
		return colorGreen + "✓" + colorReset
	case "FAILED", "ROLLED_BACK", "COMPENSATION_FAILED", "CANCELLED":
		return colorRed + "✗" + colorReset
	case "RUNNING", "EXECUTING", "VERIFYING", "COMPENSATING", "RETRYING":
		return colorYellow + "⏳" + colorReset
	case "HUMAN_REVIEW", "ESCALATED":
		return colorYellow + "⚠" + colorReset
	case "PENDING", "SCHEDULED":
		return colorCyan + "◯" + colorReset
	default:
		return "•"
	}
}

func colorizeState(state string) string {
	switch state {
	case "COMMITTED", "COMPENSATED":
		return colorGreen + state + colorReset
	case "FAILED", "ROLLED_BACK", "COMPENSATION_FAILED", "CANCELLED":
		return colorRed + state + colorReset
	case "RUNNING", "EXECUTING", "VERIFYING", "COMPENSATING", "RETRYING", "HUMAN_REVIEW", "ESCALATED":
		return colorYellow + state + colorReset
	case "PENDING", "SCHEDULED":
		return colorCyan + state + colorReset
	default:
		return state
	}
}

func formatTimeWithRelative(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	relative := relativeTime(t)
	return fmt.Sprintf("%s %s(%s ago)%s", t.Format("Mon, 02 Jan 2006 15:04:05 MST"), colorDim, relative, colorReset)
}

func relativeTime(t time.Time) string {
	duration := time.Since(t)

	if duration < time.Minute {
		return fmt.Sprintf("%ds", int(duration.Seconds()))
	} else if duration < time.Hour {
		return fmt.Sprintf("%dm", int(duration.Minutes()))
	} else if duration < 24*time.Hour {
		return fmt.Sprintf("%dh", int(duration.Hours()))
	} else {
		days := int(duration.Hours() / 24)
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	}
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

package cmd

import (
	"github.com/spf13/cobra"

	"flowplane/pkg/api"
)

var tenantsCmd = &cobra.Command{
	Use:   "tenants",
	Short: "Manage tenants (operator only)",
}

var tenantsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new tenant and print its API key",
	Long: `Create a tenant. The generated API key is printed exactly once; only its
hash is stored server-side.

Requires the internal operator key as the bearer token (FLOWPLANE_TOKEN or
--token).

Tiers: free, pro, enterprise, internal. Quota flags left at zero default from
the tier.`,
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		name, _ := flags.GetString("name")
		tier, _ := flags.GetString("tier")
		weight, _ := flags.GetInt("weight")
		queueLimit, _ := flags.GetInt("queue-limit")
		budgetLimit, _ := flags.GetFloat64("budget-limit")

		if name == "" {
			cmd.Println("Error: --name is required")
			return
		}

		client, ok := authedClient(cmd)
		if !ok {
			return
		}

		result, err := client.CreateTenant(api.CreateTenantRequest{
			Name:        name,
			Tier:        tier,
			Weight:      weight,
			QueueLimit:  queueLimit,
			BudgetLimit: budgetLimit,
		})
		if err != nil {
			printAPIError(cmd, "Create", err)
			return
		}

		cmd.Printf("✓ Tenant created!\n")
		cmd.Printf("Tenant ID: %s\n", result.ID)
		cmd.Printf("Tier:      %s\n", result.Tier)
		cmd.Printf("API Key:   %s\n", result.ApiKey)
		cmd.Println("Store this key now. It cannot be retrieved again.")
	},
}

func init() {
	flags := tenantsCreateCmd.Flags()
	flags.StringP("name", "n", "", "Name of the tenant (required)")
	flags.String("tier", "free", "Service tier: free, pro, enterprise or internal")
	flags.Int("weight", 0, "Scheduling weight override")
	flags.Int("queue-limit", 0, "Queue depth limit override")
	flags.Float64("budget-limit", 0, "Budget limit override")

	tenantsCmd.AddCommand(tenantsCreateCmd)
	rootCmd.AddCommand(tenantsCmd)
}

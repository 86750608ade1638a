package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "flowctl",
	Short: "Flowctl is a command line tool for interacting with the flowplane platform",
	Long: `flowctl is the command-line interface for the FlowPlane workflow orchestration platform.

FlowPlane executes multi-step workflow graphs (DAGs) for isolated tenants with
saga-style rollback, a fair-share priority scheduler, and a tamper-evident
execution ledger. Every state transition is hash-chained and signed, so any
past run can be replayed, verified, and compared bit-for-bit.

Common workflows:

  Submit a workflow graph:
    flowctl submit --file deploy.json

  Check workflow status:
    flowctl status <workflow-id>

  Cancel a running workflow (compensates committed steps):
    flowctl cancel <workflow-id>

  Resolve a workflow waiting in human review:
    flowctl resume <workflow-id> --decision retry

  Verify your execution ledger:
    flowctl ledger verify

  Replay and compare runs:
    flowctl ledger replay <workflow-id>
    flowctl ledger diff <workflow-a> <workflow-b>

Configuration:
  Set the API endpoint and credentials via environment variables or a config file:
    FLOWPLANE_URL      API endpoint (default: http://localhost:6161)
    FLOWPLANE_TOKEN    Tenant API token for authentication`,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".flowctl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".flowctl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "FLOWPLANE_VARNAME"
	viper.SetEnvPrefix("FLOWPLANE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.flowctl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:6161", "FlowPlane Controller URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))

	rootCmd.PersistentFlags().StringP("token", "t", "", "API Token for authentication")
	viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
}

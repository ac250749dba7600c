// Package cmd provides the CLI commands for hookrelay.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// cfgFile holds the path to the config file.
	cfgFile string
	// verbose enables verbose output.
	verbose bool
	// outputFormat specifies the output format (json, plain).
	outputFormat string
)

// rootCmd is the base command when hookrelay is called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "hookrelay",
	Short: "Webhook delivery server",
	Long: `hookrelay delivers events to registered webhooks, batching them when
configured to and retrying failed at-least-once deliveries with exponential
backoff until a webhook's failure horizon is reached.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and runs it. Called
// once by main.main().
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command, for testing.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// NewRootCmd builds a fresh root command tree, for tests that need
// isolation from the package-level rootCmd singleton.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          rootCmd.Use,
		Short:        rootCmd.Short,
		Long:         rootCmd.Long,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.hookrelay.yaml)")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	cmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "plain", "output format (json|plain)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServerCmd())
	cmd.AddCommand(newCompletionCmd())

	return cmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.hookrelay.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "plain", "output format (json|plain)")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newServerCmd())
	rootCmd.AddCommand(newCompletionCmd())
}

func printVerbose(cmd *cobra.Command, format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(cmd.OutOrStdout(), format, args...)
	}
}

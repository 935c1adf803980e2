// Package commands implements the vrd command-line entry point,
// grounded on the teacher's cmd/dfs/commands package: a cobra root
// command with one subcommand per concern and a package-level
// Execute() the main package delegates to.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version, Commit and Date are set by main() from ldflags before
// Execute runs.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "vrd",
	Short: "vrd runs a single Viewstamped Replication replica process",
	Long: `vrd starts one replica of a Viewstamped Replication deployment.

A deployment is a fixed, odd-sized set of replica processes, each
started with the same address table and its own replica id. Use
--config to point at the deployment's configuration file, or set
VRD_-prefixed environment variables to override individual fields.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to configuration file")
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(versionCmd)
}

// GetConfigFile returns the --config flag's value, empty if unset.
func GetConfigFile() string {
	return configFile
}

// Execute runs the root command. main() calls this and exits non-zero
// on error.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("vrd: %w", err)
	}
	return nil
}

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goodtune/ttw/internal/stats"
	"github.com/spf13/cobra"
)

var (
	version    = "dev"
	configPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ttw",
	Short: "ttw - time tracking for focused windows",
	Long: `ttw records which application window has focus, keeps a log of focus
sessions and reports how much time went to each application.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to configuration file")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", stats.ErrArgument, err)
	})
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(dir, "ttw", "config.yaml")
}

// Execute adds all child commands to the root command and exits with a code
// describing the failure category.
func Execute() {
	cmd, err := rootCmd.ExecuteC()
	if err == nil {
		return
	}

	fmt.Fprintln(os.Stderr, "Error:", err)
	if isArgumentError(err) && cmd != nil {
		fmt.Fprintln(os.Stderr)
		fmt.Fprint(os.Stderr, cmd.UsageString())
	}
	os.Exit(exitCode(err))
}

// Command radmixd runs the compositor engine: it loads configuration,
// wires up logging, metrics, and the MQTT notifier, then serves mixed
// composition audio to attached adapters.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := RootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// RootCommand builds the radmixd CLI: a persistent --config flag and
// a serve subcommand that runs the compositor engine to completion.
func RootCommand() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "radmixd",
		Short: "Live multi-composition audio mixing engine",
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config.yaml directory (defaults to ./ and /etc/radmix)")

	rootCmd.AddCommand(serveCommand(&configPath))
	rootCmd.AddCommand(versionCommand())

	return rootCmd
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the radmixd version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("radmixd (development build)")
			return nil
		},
	}
}

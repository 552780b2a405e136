package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/revittco/mutacache/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "mutacache",
		Short:         "Mutation-mode cache consistency engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c",
		envOr("MUTACACHE_CONFIG", config.DefaultDataPath("mutacache.yaml")),
		"Path to mutacache.yaml")

	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newJournalCmd(opts))
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the application version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "mutacache version %s\n", version)
		},
	}
}

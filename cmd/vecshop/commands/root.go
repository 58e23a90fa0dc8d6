package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/vecshop/internal/config"
	"github.com/kailas-cloud/vecshop/internal/version"
)

// NewRootCommand assembles the vecshop CLI.
func NewRootCommand() *cobra.Command {
	opts := &Options{}

	root := &cobra.Command{
		Use:           "vecshop",
		Short:         "Multimodal product similarity search",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.Env, "env", "e", config.GetEnv(),
		"Config environment, loads config/<env>.yaml")

	root.AddCommand(
		NewServeCommand(opts),
		NewSearchCommand(opts),
		NewSearchImageCommand(opts),
		NewIngestCommand(opts),
		NewMCPCommand(opts),
		newVersionCommand(),
	)
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "vecshop %s (commit %s, built %s)\n",
				version.Version, version.Commit, version.Date)
			return err
		},
	}
}

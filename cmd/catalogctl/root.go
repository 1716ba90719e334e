package main

import (
	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	return newRootCommandWith(nil)
}

// newRootCommandWith reads configuration from l instead of the process
// environment when l is non-nil.
func newRootCommandWith(l envconfig.Lookuper) *cobra.Command {
	var flags globalFlags
	ctx := newCommandContext(&flags)
	ctx.lookuper = l

	rootCmd := &cobra.Command{
		Use:           "catalogctl",
		Short:         "Ingest and inspect site catalogs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.ensureConfig(cmd.Context())
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.sqlitePath, "sqlite", "", "Use a SQLite database file instead of DATABASE_URL")
	pf.StringVar(&flags.envFile, "env-file", "", "Load environment variables from this file")
	pf.BoolVar(&flags.json, "json", false, "Print JSON instead of tables")

	rootCmd.AddCommand(newIngestCommand(ctx))
	rootCmd.AddCommand(newCatalogCommand(ctx))
	rootCmd.AddCommand(newUploadsCommand(ctx))
	rootCmd.AddCommand(newMigrateCommand(ctx))
	rootCmd.AddCommand(newSiteCommand(ctx))
	rootCmd.AddCommand(newTokenCommand(ctx))

	return rootCmd
}

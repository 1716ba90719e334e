package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sitecatalog/internal/store/postgres"
	"github.com/JonMunkholm/sitecatalog/internal/store/sqlite"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if path := strings.TrimSpace(ctx.flags.sqlitePath); path != "" {
				store, err := sqlite.Open(cmd.Context(), path)
				if err != nil {
					return err
				}
				defer store.Close()
				fmt.Fprintf(out, "SQLite database %s is up to date\n", store.Path())
				return nil
			}

			url := ctx.config.Database.URL
			if url == "" {
				return errors.New("DATABASE_URL is required unless --sqlite is set")
			}
			pool, err := postgres.Open(cmd.Context(), url, postgres.PoolOptions{MaxConns: 2})
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := postgres.Migrate(cmd.Context(), pool); err != nil {
				return err
			}
			fmt.Fprintln(out, "PostgreSQL database is up to date")
			return nil
		},
	}
}

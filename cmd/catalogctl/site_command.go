package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sitecatalog/internal/core"
)

func newSiteCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "site",
		Short: "Manage sites",
	}
	cmd.AddCommand(newSiteAddCommand(ctx))
	cmd.AddCommand(newSiteShowCommand(ctx))
	return cmd
}

func newSiteAddCommand(ctx *commandContext) *cobra.Command {
	var site core.Site

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a site",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			site.Name = strings.TrimSpace(site.Name)
			if site.Name == "" {
				return errors.New("--name is required")
			}
			if site.Slug == "" {
				site.Slug = slugify(site.Name)
			}
			site.Active = true

			backend, closeBackend, err := ctx.openBackend(cmd.Context())
			if err != nil {
				return err
			}
			defer closeBackend()

			created, err := backend.CreateSite(cmd.Context(), site)
			if err != nil {
				return err
			}
			if ctx.flags.json {
				return writeJSON(cmd, created)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created site %d (%s)\n", created.ID, created.Slug)
			return nil
		},
	}

	cmd.Flags().StringVar(&site.Name, "name", "", "Display name")
	cmd.Flags().StringVar(&site.Slug, "slug", "", "URL slug (derived from name when empty)")
	cmd.Flags().Int64Var(&site.OwnerUserID, "owner", 0, "Owner user ID")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func newSiteShowCommand(ctx *commandContext) *cobra.Command {
	var siteID int64

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a site",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, closeBackend, err := ctx.openBackend(cmd.Context())
			if err != nil {
				return err
			}
			defer closeBackend()

			site, err := backend.GetSite(cmd.Context(), siteID)
			if err != nil {
				return err
			}
			if ctx.flags.json {
				return writeJSON(cmd, site)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Name", "Slug", "Owner", "Active"},
				[][]string{{
					fmt.Sprint(site.ID), site.Name, site.Slug,
					fmt.Sprint(site.OwnerUserID), fmt.Sprint(site.Active),
				}},
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().Int64Var(&siteID, "site", 0, "Site ID")
	_ = cmd.MarkFlagRequired("site")
	return cmd
}

// slugify lowercases name and joins alphanumeric runs with dashes.
func slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
		default:
			dash = true
		}
	}
	return b.String()
}

package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sitecatalog/internal/core"
)

func newCatalogCommand(ctx *commandContext) *cobra.Command {
	var siteID int64

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Show a site's current catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, closeBackend, err := ctx.openBackend(cmd.Context())
			if err != nil {
				return err
			}
			defer closeBackend()

			if _, err := backend.GetSite(cmd.Context(), siteID); err != nil {
				return err
			}
			entries, err := backend.ListCatalog(cmd.Context(), siteID)
			if err != nil {
				return err
			}

			if ctx.flags.json {
				if entries == nil {
					entries = []core.CatalogEntry{}
				}
				return writeJSON(cmd, entries)
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No products")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderProducts(entries))
			return nil
		},
	}

	cmd.Flags().Int64Var(&siteID, "site", 0, "Site ID")
	_ = cmd.MarkFlagRequired("site")
	return cmd
}

func newUploadsCommand(ctx *commandContext) *cobra.Command {
	var (
		siteID int64
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "uploads",
		Short: "List recent uploads for a site",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, closeBackend, err := ctx.openBackend(cmd.Context())
			if err != nil {
				return err
			}
			defer closeBackend()

			records, err := backend.ListUploads(cmd.Context(), siteID, limit)
			if err != nil {
				return err
			}

			if ctx.flags.json {
				if records == nil {
					records = []core.UploadRecord{}
				}
				return writeJSON(cmd, records)
			}
			rows := make([][]string, 0, len(records))
			for _, r := range records {
				rows = append(rows, []string{
					strconv.FormatInt(r.ID, 10),
					strconv.FormatInt(r.UserID, 10),
					r.Status,
					r.CreatedAt.Local().Format(time.DateTime),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Upload", "User", "Status", "Created"},
				rows,
				[]columnAlignment{alignRight, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().Int64Var(&siteID, "site", 0, "Site ID")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum uploads to show")
	_ = cmd.MarkFlagRequired("site")
	return cmd
}

func renderProducts(entries []core.CatalogEntry) string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			strconv.FormatInt(e.ID, 10),
			e.ItemName,
			deref(e.ImageName),
			formatPrice(e.Price),
			deref(e.Description),
		})
	}
	return renderTable(
		[]string{"ID", "Item", "Image", "Price", "Description"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft},
	)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatPrice(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'f', 2, 64)
}

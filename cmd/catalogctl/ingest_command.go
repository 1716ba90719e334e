package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sitecatalog/internal/assetstore"
	"github.com/JonMunkholm/sitecatalog/internal/core"
	"github.com/JonMunkholm/sitecatalog/internal/events"
)

type ingestOptions struct {
	siteID   int64
	userID   int64
	admin    bool
	manifest string
	images   string
}

func newIngestCommand(ctx *commandContext) *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Replace a site's catalog with a manifest and an image directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, ctx, opts)
		},
	}

	cmd.Flags().Int64Var(&opts.siteID, "site", 0, "Site ID")
	cmd.Flags().Int64Var(&opts.userID, "user", 0, "User ID performing the upload")
	cmd.Flags().BoolVar(&opts.admin, "admin", false, "Act as an administrator")
	cmd.Flags().StringVar(&opts.manifest, "manifest", "", "CSV or XLSX manifest path")
	cmd.Flags().StringVar(&opts.images, "images", "", "Directory of images to upload")
	_ = cmd.MarkFlagRequired("site")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("manifest")

	return cmd
}

func runIngest(cmd *cobra.Command, cc *commandContext, opts ingestOptions) error {
	runCtx := cmd.Context()
	cfg := cc.config
	if err := cfg.ValidateAssets(); err != nil {
		return err
	}

	manifest, err := os.ReadFile(opts.manifest)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	images, err := readImageDir(opts.images)
	if err != nil {
		return err
	}

	backend, closeBackend, err := cc.openBackend(runCtx)
	if err != nil {
		return err
	}
	defer closeBackend()

	service, cleanup, err := newIngestService(runCtx, cc, backend)
	if err != nil {
		return err
	}
	defer cleanup()

	if _, err := service.Authorize(runCtx, opts.siteID, opts.userID, opts.admin); err != nil {
		return err
	}

	res, err := service.Ingest(runCtx, core.Request{
		SiteID:       opts.siteID,
		UserID:       opts.userID,
		ManifestName: filepath.Base(opts.manifest),
		Manifest:     manifest,
		Images:       images,
	})
	if err != nil {
		return err
	}

	if cc.flags.json {
		return writeJSON(cmd, res)
	}
	printIngestResult(cmd, res)
	return nil
}

// newIngestService wires a Service for one CLI run. Local asset roots are
// locked on disk so the CLI and a running server do not interleave.
func newIngestService(ctx context.Context, cc *commandContext, backend catalogBackend) (*core.Service, func(), error) {
	cfg := cc.config

	assets, err := assetstore.Open(ctx, cfg.Assets)
	if err != nil {
		return nil, nil, err
	}

	var locker core.SiteLocker
	if cfg.Assets.Backend == "local" {
		fl, err := core.NewFileSiteLocker(filepath.Join(cfg.Assets.Root, ".locks"))
		if err != nil {
			return nil, nil, err
		}
		locker = fl
	}

	cleanup := func() {}
	var publisher core.EventPublisher
	if cfg.Events.Enabled() {
		p, err := events.Connect(cfg.Events.URL, cfg.Events.Stream, cfg.Events.Subject)
		if err != nil {
			return nil, nil, err
		}
		publisher = p
		cleanup = p.Close
	}

	service, err := core.NewService(core.ServiceOptions{
		Catalog:      backend,
		Sites:        backend,
		Assets:       assets,
		Events:       publisher,
		Locker:       locker,
		AssetOptions: assetstore.IngestOptions(cfg.Assets),
		Timeout:      cfg.Upload.Timeout,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return service, cleanup, nil
}

// readImageDir loads every regular file in dir, sorted by name. An empty
// path or a directory without files means no images.
func readImageDir(dir string) ([]core.AssetFile, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read images: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var files []core.AssetFile
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read image %s: %w", e.Name(), err)
		}
		files = append(files, core.AssetFile{Name: e.Name(), Data: data})
	}
	return files, nil
}

func printIngestResult(cmd *cobra.Command, res *core.Result) {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "Upload %d: %d products, %d images stored, %d rows dropped, %d images rejected\n",
		res.UploadID, res.ProductsCount, res.ImagesUploaded, res.RowsDropped, res.ImagesRejected)

	fmt.Fprintln(out, renderProducts(res.Products))

	if len(res.Assets) > 0 {
		rows := make([][]string, 0, len(res.Assets))
		for _, a := range res.Assets {
			detail := a.StoredName
			if a.Outcome == core.OutcomeRejected {
				detail = string(a.Reason)
			}
			dims := ""
			if a.Width > 0 {
				dims = strconv.Itoa(a.Width) + "x" + strconv.Itoa(a.Height)
			}
			rows = append(rows, []string{a.OriginalName, string(a.Outcome), detail, dims, strconv.Itoa(a.Size)})
		}
		fmt.Fprintln(out, renderTable(
			[]string{"Image", "Outcome", "Stored / Reason", "Size", "Bytes"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight},
		))
	}
}

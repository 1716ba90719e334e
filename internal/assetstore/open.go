package assetstore

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/sitecatalog/internal/config"
	"github.com/JonMunkholm/sitecatalog/internal/core"
)

// Open returns the backend selected by cfg.Backend.
func Open(ctx context.Context, cfg config.AssetConfig) (core.AssetStore, error) {
	switch cfg.Backend {
	case "", "local":
		return NewLocal(cfg.Root)
	case "s3":
		return NewS3(ctx, S3Options{
			Endpoint:     cfg.S3.Endpoint,
			Region:       cfg.S3.Region,
			Bucket:       cfg.S3.Bucket,
			AccessKey:    cfg.S3.AccessKey,
			SecretKey:    cfg.S3.SecretKey,
			UsePathStyle: cfg.S3.UsePathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown asset backend %q", cfg.Backend)
	}
}

// IngestOptions converts asset settings into ingestor limits.
func IngestOptions(cfg config.AssetConfig) core.AssetOptions {
	opts := core.DefaultAssetOptions()
	opts.MaxSize = cfg.MaxImageSize
	opts.MaxDimension = cfg.MaxDimension
	opts.Workers = cfg.DecodeWorkers
	opts.AllowPassthrough = cfg.AllowPassthrough
	return opts
}

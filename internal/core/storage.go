package core

import (
	"assetflow/internal/blob"
	"assetflow/internal/config"
	"assetflow/internal/infra/blob/fs"
	blobmemory "assetflow/internal/infra/blob/memory"
	blobs3 "assetflow/internal/infra/blob/s3"
	"assetflow/internal/infra/persistence/memory"
	"assetflow/internal/infra/persistence/postgres"
	"assetflow/internal/infra/persistence/sqlite"
	"assetflow/pkg/domain"
	"context"
	"fmt"
	"strings"
)

// OpenDocumentStore constructs the document store named by cfg.Driver.
func OpenDocumentStore(ctx context.Context, cfg config.StorageConfig) (domain.DocumentStore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case config.StorageMemory:
		return memory.NewStore(), nil
	case "", config.StorageSQLite:
		s, err := sqlite.NewStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.StoragePostgres:
		s, err := postgres.NewStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// OpenBlobStore constructs the object store named by cfg.Driver. An empty
// driver disables blob storage and returns nil.
func OpenBlobStore(ctx context.Context, cfg config.BlobConfig) (blob.Store, error) {
	switch blob.Driver(strings.ToLower(strings.TrimSpace(cfg.Driver))) {
	case "", "none":
		return nil, nil
	case blob.DriverMemory:
		return blobmemory.New(), nil
	case blob.DriverFilesystem:
		s, err := fs.New(cfg.FSRoot)
		if err != nil {
			return nil, err
		}
		return s, nil
	case blob.DriverS3:
		s, err := blobs3.New(ctx, blobs3.Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			PathStyle:       cfg.S3.PathStyle,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}

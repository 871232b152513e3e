// Package blob selects the blob store backing the sync journal and backups.
package blob

import (
	"context"
	"fmt"

	"gibiertrace/internal/blob/core"
	"gibiertrace/internal/infra/blob/fs"
	"gibiertrace/internal/infra/blob/memory"
	"gibiertrace/internal/infra/blob/s3"
)

// Config selects and configures a blob backend.
type Config struct {
	Driver core.Driver `yaml:"driver"`
	FSRoot string      `yaml:"fs_root"`
	S3     s3.Config   `yaml:"s3"`
}

// Open returns the configured store. The driver defaults to fs.
func Open(ctx context.Context, cfg Config) (core.Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = core.DriverFilesystem
	}
	switch driver {
	case core.DriverFilesystem:
		return fs.New(cfg.FSRoot)
	case core.DriverS3:
		return s3.New(ctx, cfg.S3)
	case core.DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}

package archive

import (
	"context"
	"fmt"

	fsstore "herdcore/internal/infra/archive/fs"
	memorystore "herdcore/internal/infra/archive/memory"
	s3store "herdcore/internal/infra/archive/s3"
)

// Settings selects and configures an archive backend. Zero values fall back
// to sensible defaults (filesystem driver rooted at ./archivedata).
type Settings struct {
	Driver Driver
	FSRoot string // driver=fs: directory root
}

// Open selects a Store implementation from Settings. S3-specific parameters
// are read from the environment (documented in the s3 backend).
func Open(ctx context.Context, settings Settings) (Store, error) {
	driver := settings.Driver
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return fsstore.New(settings.FSRoot)
	case DriverS3:
		return s3store.OpenFromEnv(ctx)
	case DriverMemory:
		return memorystore.New(), nil
	default:
		return nil, fmt.Errorf("unknown archive driver %s", driver)
	}
}

// NewMemory returns an in-memory archive Store suitable for tests.
func NewMemory() Store { return memorystore.New() }

// NewFilesystem returns a filesystem archive Store rooted at path.
func NewFilesystem(root string) (Store, error) { return fsstore.New(root) }

// NewS3 constructs an S3-backed archive Store from explicit configuration.
func NewS3(ctx context.Context, cfg s3store.Config) (Store, error) { return s3store.New(ctx, cfg) }

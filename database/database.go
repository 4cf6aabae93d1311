package database

import (
	"context"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger = slog.Default()

// Repository defines database operations. It backs the preview cache index and the conversion job log.
type Repository interface {
	Close() error
	// Converted artifacts
	LookupConverted(ctx context.Context, key string) (string, bool, error)
	SaveConverted(ctx context.Context, key, relPath string) error
	DeleteConverted(ctx context.Context, key string) error
	// Page image sets
	LookupPages(ctx context.Context, key string) ([]string, bool, error)
	SavePages(ctx context.Context, key string, relPaths []string) error
	DeletePages(ctx context.Context, key string) error
	// Conversion jobs
	StartConversion(ctx context.Context, cacheKey, source string) (string, error)
	FinishConversion(ctx context.Context, jobID string, succeeded bool, detail string) error
	GetJob(ctx context.Context, jobID string) (*Job, error)
	GetRecentJobs(ctx context.Context, limit int) ([]Job, error)
	DeleteOldJobs(ctx context.Context, olderThan time.Duration) (int, error)
}

// CalculateUUID creates a ULID for the given time. Ids minted in the same instant still differ.
func CalculateUUID(at time.Time) (ulid.ULID, error) {
	return ulid.New(ulid.Timestamp(at), ulid.DefaultEntropy())
}

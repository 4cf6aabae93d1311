package database

import (
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/uptrace/bun"
)

// BunConvertedFile represents the converted_files table for Bun ORM
type BunConvertedFile struct {
	bun.BaseModel `bun:"table:converted_files,alias:cf"`

	CacheKey     string    `bun:"cache_key,pk"`
	RelativePath string    `bun:"relative_path,notnull"`
	CreatedAt    time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt    time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// BunConvertedPages represents the converted_pages table for Bun ORM
type BunConvertedPages struct {
	bun.BaseModel `bun:"table:converted_pages,alias:cp"`

	CacheKey      string    `bun:"cache_key,pk"`
	RelativePaths string    `bun:"relative_paths,notnull"` // JSON array in page order
	PageCount     int       `bun:"page_count,notnull"`
	CreatedAt     time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt     time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// Paths decodes the stored page list
func (bp *BunConvertedPages) Paths() ([]string, error) {
	var paths []string
	if err := json.Unmarshal([]byte(bp.RelativePaths), &paths); err != nil {
		return nil, err
	}
	return paths, nil
}

// FromPaths builds a page set row
func FromPaths(key string, relPaths []string, now time.Time) (*BunConvertedPages, error) {
	encoded, err := json.Marshal(relPaths)
	if err != nil {
		return nil, err
	}
	return &BunConvertedPages{
		CacheKey:      key,
		RelativePaths: string(encoded),
		PageCount:     len(relPaths),
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// BunJob represents the jobs table for Bun ORM
type BunJob struct {
	bun.BaseModel `bun:"table:jobs,alias:j"`

	ID          string     `bun:"id,pk"` // ULID as string
	Type        string     `bun:"type,notnull"`
	Status      string     `bun:"status,default:'pending'"`
	CacheKey    string     `bun:"cache_key,default:''"`
	Source      string     `bun:"source,default:''"`
	Message     string     `bun:"message,default:''"`
	Error       string     `bun:"error,nullzero"`
	Result      string     `bun:"result,nullzero"`
	CreatedAt   time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt   time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
	StartedAt   *time.Time `bun:"started_at,nullzero"`
	CompletedAt *time.Time `bun:"completed_at,nullzero"`
}

// ToJob converts BunJob to Job
func (bj *BunJob) ToJob() (*Job, error) {
	parsedULID, err := ulid.Parse(bj.ID)
	if err != nil {
		return nil, err
	}

	return &Job{
		ID:          parsedULID,
		Type:        JobType(bj.Type),
		Status:      JobStatus(bj.Status),
		CacheKey:    bj.CacheKey,
		Source:      bj.Source,
		Message:     bj.Message,
		Error:       bj.Error,
		Result:      bj.Result,
		CreatedAt:   bj.CreatedAt,
		UpdatedAt:   bj.UpdatedAt,
		StartedAt:   bj.StartedAt,
		CompletedAt: bj.CompletedAt,
	}, nil
}

// FromJob converts Job to BunJob
func FromJob(job *Job) *BunJob {
	return &BunJob{
		ID:          job.ID.String(),
		Type:        string(job.Type),
		Status:      string(job.Status),
		CacheKey:    job.CacheKey,
		Source:      job.Source,
		Message:     job.Message,
		Error:       job.Error,
		Result:      job.Result,
		CreatedAt:   job.CreatedAt,
		UpdatedAt:   job.UpdatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	}
}

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/uptrace/bun"
)

// JobStatus represents the status of a job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// JobType represents the type of job
type JobType string

const (
	JobTypeConversion JobType = "conversion"
	JobTypeCleanup    JobType = "cleanup"
)

// Job is one recorded conversion attempt
type Job struct {
	ID          ulid.ULID  `json:"id"`
	Type        JobType    `json:"type"`
	Status      JobStatus  `json:"status"`
	CacheKey    string     `json:"cacheKey"`
	Source      string     `json:"source"`
	Message     string     `json:"message"`
	Error       string     `json:"error,omitempty"`  // Error message if failed
	Result      string     `json:"result,omitempty"` // outcome detail
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// StartConversion records a running conversion job and returns its id
func (b *BunDB) StartConversion(ctx context.Context, cacheKey, source string) (string, error) {
	now := time.Now()
	jobID, err := CalculateUUID(now)
	if err != nil {
		return "", err
	}

	job := &Job{
		ID:        jobID,
		Type:      JobTypeConversion,
		Status:    JobStatusRunning,
		CacheKey:  cacheKey,
		Source:    source,
		Message:   "Converting " + cacheKey,
		CreatedAt: now,
		UpdatedAt: now,
		StartedAt: &now,
	}

	_, err = b.db.NewInsert().
		Model(FromJob(job)).
		Exec(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to create conversion job: %w", err)
	}
	return jobID.String(), nil
}

// FinishConversion completes or fails a conversion job
func (b *BunDB) FinishConversion(ctx context.Context, jobID string, succeeded bool, detail string) error {
	now := time.Now()
	query := b.db.NewUpdate().
		Model((*BunJob)(nil)).
		Set("updated_at = ?", now).
		Set("completed_at = ?", now).
		Where("id = ?", jobID)
	if succeeded {
		query = query.
			Set("status = ?", JobStatusCompleted).
			Set("result = ?", detail)
	} else {
		query = query.
			Set("status = ?", JobStatusFailed).
			Set("error = ?", detail)
	}

	res, err := query.Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("job not found: %s", jobID)
	}
	return nil
}

// GetJob retrieves a job by ID
func (b *BunDB) GetJob(ctx context.Context, jobID string) (*Job, error) {
	bunJob := new(BunJob)

	err := b.db.NewSelect().
		Model(bunJob).
		Where("id = ?", jobID).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	return bunJob.ToJob()
}

// GetRecentJobs retrieves the most recent jobs
func (b *BunDB) GetRecentJobs(ctx context.Context, limit int) ([]Job, error) {
	var bunJobs []BunJob

	err := b.db.NewSelect().
		Model(&bunJobs).
		Order("created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	jobs := make([]Job, 0, len(bunJobs))
	for i := range bunJobs {
		job, err := bunJobs[i].ToJob()
		if err != nil {
			Logger.Warn("Skipping job with invalid id", "id", bunJobs[i].ID, "error", err)
			continue
		}
		jobs = append(jobs, *job)
	}
	return jobs, nil
}

// DeleteOldJobs deletes finished jobs older than the specified duration
func (b *BunDB) DeleteOldJobs(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)

	res, err := b.db.NewDelete().
		Model((*BunJob)(nil)).
		Where("status IN (?)", bun.In([]string{string(JobStatusCompleted), string(JobStatusFailed), string(JobStatusCancelled)})).
		Where("completed_at < ?", cutoff).
		Exec(ctx)
	if err != nil {
		return 0, err
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rowsAffected), nil
}

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ibrahimkeyboad/stenaledger/internal/core/domain"
)

const (
	jobPrefix = "job:"
	// Finished jobs move here so Claim only scans live ones.
	doneJobPrefix = "job-done:"
)

// JobRepository is a FIFO queue of webhook jobs on top of the KV store.
// Claims are version-checked, so two workers never run the same job at once.
type JobRepository struct {
	kv KV
}

func NewJobRepository(kv KV) *JobRepository {
	return &JobRepository{kv: kv}
}

// Enqueue stores a new pending job.
func (r *JobRepository) Enqueue(ctx context.Context, url string, payload any, now time.Time) (*domain.Job, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job payload: %w", err)
	}
	job := &domain.Job{
		ID:        uuid.NewString(),
		URL:       url,
		Payload:   body,
		Status:    domain.JobPending,
		NextRunAt: now,
		CreatedAt: now,
	}
	job.Key = fmt.Sprintf("%s%020d:%s", jobPrefix, now.UnixNano(), job.ID)
	if err := r.save(ctx, job, 0); err != nil {
		return nil, err
	}
	return job, nil
}

// Claim picks the oldest due pending job and leases it until now+lease.
// It returns domain.ErrNotFound when nothing is due.
func (r *JobRepository) Claim(ctx context.Context, now time.Time, lease time.Duration) (*domain.Job, error) {
	entries, err := r.kv.ListByPrefix(ctx, jobPrefix)
	if err != nil {
		return nil, err
	}

	for _, e := range entries {
		job, err := decodeJob(e)
		if err != nil {
			return nil, err
		}
		if job.Status != domain.JobPending || job.NextRunAt.After(now) {
			continue
		}

		job.NextRunAt = now.Add(lease)
		err = r.save(ctx, job, job.Version)
		if errors.Is(err, domain.ErrConflict) {
			// Another worker got it first.
			continue
		}
		if err != nil {
			return nil, err
		}
		return job, nil
	}
	return nil, domain.ErrNotFound
}

func (r *JobRepository) Complete(ctx context.Context, job *domain.Job) error {
	return r.finish(ctx, job, domain.JobCompleted)
}

func (r *JobRepository) Fail(ctx context.Context, job *domain.Job) error {
	return r.finish(ctx, job, domain.JobFailed)
}

// finish moves a claimed job out of the live queue in one commit.
func (r *JobRepository) finish(ctx context.Context, job *domain.Job, status domain.JobStatus) error {
	if !strings.HasPrefix(job.Key, jobPrefix) {
		return fmt.Errorf("%w: job %s is already finished", domain.ErrInvalidTransition, job.ID)
	}
	job.Status = status
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}

	doneKey := doneJobPrefix + strings.TrimPrefix(job.Key, jobPrefix)
	err = r.kv.Commit(ctx,
		Mutation{Key: job.Key, ExpectedVersion: job.Version, Delete: true},
		Mutation{Key: doneKey, Value: data, ExpectedVersion: 0},
	)
	if err != nil {
		return err
	}
	job.Key = doneKey
	job.Version = 1
	return nil
}

// Retry counts the attempt and schedules the next run.
func (r *JobRepository) Retry(ctx context.Context, job *domain.Job, nextRun time.Time) error {
	job.Attempts++
	job.NextRunAt = nextRun
	return r.save(ctx, job, job.Version)
}

// List returns the live jobs, oldest first, followed by the finished ones.
func (r *JobRepository) List(ctx context.Context) ([]*domain.Job, error) {
	var jobs []*domain.Job
	for _, prefix := range []string{jobPrefix, doneJobPrefix} {
		entries, err := r.kv.ListByPrefix(ctx, prefix)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			job, err := decodeJob(e)
			if err != nil {
				return nil, err
			}
			jobs = append(jobs, job)
		}
	}
	return jobs, nil
}

func (r *JobRepository) save(ctx context.Context, job *domain.Job, expected int64) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	version, err := r.kv.Put(ctx, job.Key, data, expected)
	if err != nil {
		return err
	}
	job.Version = version
	return nil
}

func decodeJob(e Entry) (*domain.Job, error) {
	var job domain.Job
	if err := json.Unmarshal(e.Value, &job); err != nil {
		return nil, fmt.Errorf("failed to decode job %q: %w", e.Key, err)
	}
	job.Key = e.Key
	job.Version = e.Version
	return &job, nil
}

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/campus-import-api/internal/dto"
)

const progressTTL = time.Hour

// ProgressService keeps a live per-job progress snapshot in Redis so the HTTP
// layer can answer polls for running jobs without touching Postgres. Progress
// is advisory: losing it never fails a job.
type ProgressService struct {
	client *redis.Client
}

// NewProgressService constructs the progress tracker.
func NewProgressService(client *redis.Client) *ProgressService {
	return &ProgressService{client: client}
}

func progressKey(jobID string) string {
	return fmt.Sprintf("bulk:job:%s:progress", jobID)
}

// Set stores the snapshot for a job.
func (p *ProgressService) Set(ctx context.Context, jobID string, progress dto.JobProgress) error {
	if p == nil || p.client == nil {
		return nil
	}
	progress.Timestamp = time.Now().UTC()
	payload, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	return p.client.Set(ctx, progressKey(jobID), payload, progressTTL).Err()
}

// Get returns the snapshot for a job, or nil when none exists.
func (p *ProgressService) Get(ctx context.Context, jobID string) (*dto.JobProgress, error) {
	if p == nil || p.client == nil {
		return nil, nil
	}
	payload, err := p.client.Get(ctx, progressKey(jobID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var progress dto.JobProgress
	if err := json.Unmarshal(payload, &progress); err != nil {
		return nil, fmt.Errorf("unmarshal progress: %w", err)
	}
	return &progress, nil
}

// Clear drops the snapshot once a job is terminal.
func (p *ProgressService) Clear(ctx context.Context, jobID string) error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Del(ctx, progressKey(jobID)).Err()
}

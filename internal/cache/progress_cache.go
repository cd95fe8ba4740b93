package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	redisv9 "github.com/redis/go-redis/v9"

	"docbot/internal/model"
)

// ProgressCache stores ingestion job progress.
type ProgressCache struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewProgressCache(client *redisv9.Client, ttl time.Duration) *ProgressCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ProgressCache{client: client, ttl: ttl}
}

func (c *ProgressCache) Set(ctx context.Context, progress model.IngestProgress) error {
	if progress.UpdatedAt.IsZero() {
		progress.UpdatedAt = time.Now()
	}
	payload, err := sonic.Marshal(progress)
	if err != nil {
		return fmt.Errorf("marshal ingest progress failed: %w", err)
	}
	if err := c.client.Set(ctx, progressKey(progress.JobID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set ingest progress failed: %w", err)
	}
	return nil
}

// Get returns found=false when the job is unknown or expired.
func (c *ProgressCache) Get(ctx context.Context, jobID string) (*model.IngestProgress, bool, error) {
	raw, err := c.client.Get(ctx, progressKey(jobID)).Bytes()
	if errors.Is(err, redisv9.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get ingest progress failed: %w", err)
	}
	var progress model.IngestProgress
	if err := sonic.Unmarshal(raw, &progress); err != nil {
		return nil, false, fmt.Errorf("unmarshal ingest progress failed: %w", err)
	}
	return &progress, true, nil
}

func progressKey(jobID string) string {
	return "ingest:progress:" + jobID
}

// Package redisstore persists marking job records in Redis.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/raphaelgruber/homework-marker/internal/models"
	"github.com/redis/go-redis/v9"
)

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string        // Key prefix, default "marker:"
	TTL      time.Duration // Expiration for job records, default 0 (no expiration)
}

// Store implements the job store on Redis. Each job is a JSON string; a
// sorted set scored by start time indexes them for listing.
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// New creates a store and its client.
func New(opts Options) *Store {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	prefix := opts.Prefix
	if prefix == "" {
		prefix = "marker:"
	}

	return &Store{client: client, prefix: prefix, ttl: opts.TTL}
}

func (s *Store) jobKey(id string) string {
	return s.prefix + "job:" + id
}

func (s *Store) indexKey() string {
	return s.prefix + "jobs"
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

// SaveJob stores the job record and indexes it by start time.
func (s *Store) SaveJob(ctx context.Context, job models.JobRecord) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.jobKey(job.ID), data, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(job.StartedAt.UnixNano()), Member: job.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

// GetJob loads a job record.
// Returns nil if not found.
func (s *Store) GetJob(ctx context.Context, id string) (*models.JobRecord, error) {
	data, err := s.client.Get(ctx, s.jobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}

	var job models.JobRecord
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job %s: %w", id, err)
	}
	return &job, nil
}

// ListJobs returns all job records, most recent first. Index entries whose
// record has expired are pruned.
func (s *Store) ListJobs(ctx context.Context) ([]models.JobRecord, error) {
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	if len(ids) == 0 {
		return []models.JobRecord{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.jobKey(id)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("fetch jobs: %w", err)
	}

	jobs := make([]models.JobRecord, 0, len(values))
	var stale []any
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var job models.JobRecord
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			return nil, fmt.Errorf("unmarshal job %s: %w", ids[i], err)
		}
		jobs = append(jobs, job)
	}

	if len(stale) > 0 {
		if err := s.client.ZRem(ctx, s.indexKey(), stale...).Err(); err != nil {
			return nil, fmt.Errorf("prune job index: %w", err)
		}
	}
	return jobs, nil
}

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/cuongbtq/answer-relay/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	redisJobKeyPrefix   = "ask:job:"
	redisOwnerKeyPrefix = "ask:owner:"
	redisPendingKey     = "ask:pending"

	// attempts for the optimistic completion transaction
	redisMaxTxRetries = 5
)

type redisRecord struct {
	JobID     string    `json:"jobId"`
	Owner     string    `json:"owner"`
	Status    string    `json:"status"`
	Request   string    `json:"request"`
	Result    *string   `json:"result"`
	Links     []string  `json:"links"`
	CreatedAt time.Time `json:"createdAt"`
}

func (r *redisRecord) toDomain() domain.Job {
	return domain.Job{
		JobID:     r.JobID,
		Owner:     r.Owner,
		Status:    r.Status,
		Request:   r.Request,
		Result:    r.Result,
		Links:     r.Links,
		CreatedAt: r.CreatedAt,
	}
}

// RedisStore keeps each job as a JSON document with per-owner and pending indexes
type RedisStore struct {
	rdb    redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisStore creates a store; ttl of zero keeps jobs forever
func NewRedisStore(rdb redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *RedisStore {
	return &RedisStore{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

func (s *RedisStore) CreateJob(ctx context.Context, owner, request string) (string, error) {
	record := redisRecord{
		JobID:     uuid.New().String(),
		Owner:     owner,
		Status:    domain.JobStatusPending,
		Request:   request,
		CreatedAt: time.Now().UTC(),
	}

	payload, err := json.Marshal(&record)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}

	key := redisJobKey(owner, record.JobID)
	score := float64(record.CreatedAt.UnixNano())

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, payload, s.ttl)
		pipe.ZAdd(ctx, redisOwnerKey(owner), redis.Z{Score: score, Member: record.JobID})
		pipe.ZAdd(ctx, redisPendingKey, redis.Z{Score: score, Member: key})
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to create job: %w", err)
	}

	return record.JobID, nil
}

func (s *RedisStore) GetJob(ctx context.Context, owner, jobID string) (*domain.Job, error) {
	data, err := s.rdb.Get(ctx, redisJobKey(owner, jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var record redisRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to decode job: %w", err)
	}

	job := record.toDomain()
	return &job, nil
}

func (s *RedisStore) ListJobs(ctx context.Context, owner string) ([]domain.Job, error) {
	ownerKey := redisOwnerKey(owner)

	ids, err := s.rdb.ZRange(ctx, ownerKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrange: %w", err)
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = redisJobKey(owner, id)
	}

	records, err := s.loadRecords(ctx, keys)
	if err != nil {
		return nil, err
	}

	jobs := make([]domain.Job, 0, len(records))
	var expired []interface{}
	for i, record := range records {
		if record == nil {
			expired = append(expired, ids[i])
			continue
		}
		jobs = append(jobs, record.toDomain())
	}

	if err := s.prune(ctx, ownerKey, expired); err != nil {
		return nil, err
	}
	return jobs, nil
}

// ListPending walks the pending index from offset, dropping entries whose
// document expired or is no longer PENDING, until limit live jobs are found
func (s *RedisStore) ListPending(ctx context.Context, offset, limit int) ([]domain.Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	if offset < 0 {
		offset = 0
	}

	jobs := make([]domain.Job, 0, limit)
	start := int64(offset)

	for len(jobs) < limit {
		stop := start + int64(limit-len(jobs)) - 1
		keys, err := s.rdb.ZRange(ctx, redisPendingKey, start, stop).Result()
		if err != nil {
			return nil, fmt.Errorf("redis zrange: %w", err)
		}
		if len(keys) == 0 {
			break
		}

		records, err := s.loadRecords(ctx, keys)
		if err != nil {
			return nil, err
		}

		var stale []interface{}
		for i, record := range records {
			if record == nil || record.Status != domain.JobStatusPending {
				stale = append(stale, keys[i])
				continue
			}
			jobs = append(jobs, record.toDomain())
		}

		if err := s.prune(ctx, redisPendingKey, stale); err != nil {
			return nil, err
		}
		start += int64(len(keys) - len(stale))
	}

	return jobs, nil
}

// loadRecords fetches documents in key order. Missing or undecodable
// documents come back as nil.
func (s *RedisStore) loadRecords(ctx context.Context, keys []string) ([]*redisRecord, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}

	records := make([]*redisRecord, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}

		var record redisRecord
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			s.logger.Warn("Skipping undecodable job document",
				slog.String("key", keys[i]),
				slog.String("error", err.Error()),
			)
			continue
		}
		records[i] = &record
	}

	return records, nil
}

// prune removes index members that no longer point at a live document
func (s *RedisStore) prune(ctx context.Context, index string, members []interface{}) error {
	if len(members) == 0 {
		return nil
	}

	if err := s.rdb.ZRem(ctx, index, members...).Err(); err != nil {
		return fmt.Errorf("redis zrem: %w", err)
	}

	s.logger.Debug("Pruned stale index entries",
		slog.String("index", index),
		slog.Int("count", len(members)),
	)
	return nil
}

func (s *RedisStore) CompleteJob(ctx context.Context, owner, jobID, result string, links []string) error {
	key := redisJobKey(owner, jobID)

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return domain.ErrJobNotFound
			}
			return err
		}

		var record redisRecord
		if err := json.Unmarshal(data, &record); err != nil {
			return fmt.Errorf("failed to decode job: %w", err)
		}

		if record.Status != domain.JobStatusPending {
			return domain.ErrJobNotPending
		}

		record.Status = domain.JobStatusCompleted
		record.Result = &result
		record.Links = links

		payload, err := json.Marshal(&record)
		if err != nil {
			return fmt.Errorf("failed to marshal job: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, redis.KeepTTL)
			pipe.ZRem(ctx, redisPendingKey, key)
			return nil
		})
		return err
	}

	for i := 0; i < redisMaxTxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if errors.Is(err, domain.ErrJobNotFound) || errors.Is(err, domain.ErrJobNotPending) {
				return err
			}
			return fmt.Errorf("failed to complete job: %w", err)
		}

		s.logger.Info("Job completed",
			slog.String("owner", owner),
			slog.String("job_id", jobID),
			slog.Int("links", len(links)),
		)
		return nil
	}

	return fmt.Errorf("failed to complete job: %w", redis.TxFailedErr)
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Owners are escaped so the first ':' after the prefix always ends the owner
func redisJobKey(owner, jobID string) string {
	return redisJobKeyPrefix + url.QueryEscape(owner) + ":" + jobID
}

func redisOwnerKey(owner string) string {
	return redisOwnerKeyPrefix + url.QueryEscape(owner)
}

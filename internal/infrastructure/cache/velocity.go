package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Key prefixes for the velocity store
const (
	eventPrefix    = "velocity:"
	locationPrefix = "locations:"
)

// retention padding so keys outlive their window slightly
const keyGrace = time.Minute

// VelocityStore counts recent per-subject events with Redis sorted sets:
// members are scored by occurrence time, expired members are trimmed on
// every operation and the whole key expires shortly after its window.
type VelocityStore struct {
	client *redis.Client
	logger *zap.Logger
	window time.Duration
}

// NewVelocityStore creates a Redis-backed velocity store. window bounds the
// key TTLs and should be at least the longest counting window in use.
func NewVelocityStore(client *redis.Client, window time.Duration, logger *zap.Logger) *VelocityStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VelocityStore{
		client: client,
		logger: logger,
		window: window,
	}
}

// NewClient creates a Redis client and verifies connectivity.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return client, nil
}

func eventKey(subjectID uuid.UUID, kind string) string {
	return eventPrefix + kind + ":" + subjectID.String()
}

func locationKey(subjectID uuid.UUID) string {
	return locationPrefix + subjectID.String()
}

// RecordEvent adds one occurrence for the subject/kind pair.
func (s *VelocityStore) RecordEvent(ctx context.Context, subjectID uuid.UUID, kind string, at time.Time) error {
	key := eventKey(subjectID, kind)
	member := fmt.Sprintf("%d-%d", at.UnixNano(), time.Now().Nanosecond()%1000)

	pipe := s.client.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(at.UnixNano()),
		Member: member,
	})
	pipe.Expire(ctx, key, s.window+keyGrace)

	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Error("recording velocity event failed",
			zap.String("key", key),
			zap.Error(err))
		return fmt.Errorf("recording velocity event: %w", err)
	}
	return nil
}

// CountEvents counts occurrences inside the trailing window.
func (s *VelocityStore) CountEvents(ctx context.Context, subjectID uuid.UUID, kind string, window time.Duration) (int, error) {
	key := eventKey(subjectID, kind)
	windowStart := time.Now().Add(-window)

	pipe := s.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(windowStart.UnixNano(), 10))
	countCmd := pipe.ZCard(ctx, key)

	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Error("counting velocity events failed",
			zap.String("key", key),
			zap.Error(err))
		return 0, fmt.Errorf("counting velocity events: %w", err)
	}
	return int(countCmd.Val()), nil
}

// RecordLocation tracks a session location for the subject. Repeated sightings
// of the same location refresh its score instead of adding a member, so the
// set holds distinct locations only.
func (s *VelocityStore) RecordLocation(ctx context.Context, subjectID uuid.UUID, location string, at time.Time) error {
	key := locationKey(subjectID)

	pipe := s.client.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(at.UnixNano()),
		Member: location,
	})
	pipe.Expire(ctx, key, s.window+keyGrace)

	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Error("recording location failed",
			zap.String("key", key),
			zap.Error(err))
		return fmt.Errorf("recording location: %w", err)
	}
	return nil
}

// RecentLocations returns the distinct locations seen inside the window,
// oldest first.
func (s *VelocityStore) RecentLocations(ctx context.Context, subjectID uuid.UUID, window time.Duration) ([]string, error) {
	key := locationKey(subjectID)
	windowStart := time.Now().Add(-window)

	pipe := s.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(windowStart.UnixNano(), 10))
	rangeCmd := pipe.ZRange(ctx, key, 0, -1)

	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Error("listing recent locations failed",
			zap.String("key", key),
			zap.Error(err))
		return nil, fmt.Errorf("listing recent locations: %w", err)
	}
	return rangeCmd.Val(), nil
}

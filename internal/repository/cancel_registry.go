package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const cancelKeyPrefix = "story:cancel:"

func cancelKey(storyID int64) string {
	return fmt.Sprintf("%s%d", cancelKeyPrefix, storyID)
}

// RedisCancelRegistry отметки отмены в Redis, видны всем воркерам.
type RedisCancelRegistry struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

var _ CancelRegistry = (*RedisCancelRegistry)(nil)

func NewRedisCancelRegistry(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisCancelRegistry {
	return &RedisCancelRegistry{client: client, ttl: ttl, logger: logger.Named("RedisCancelRegistry")}
}

func (r *RedisCancelRegistry) Cancel(ctx context.Context, storyID int64) error {
	if err := r.client.Set(ctx, cancelKey(storyID), "1", r.ttl).Err(); err != nil {
		r.logger.Error("Failed to set cancel flag", zap.Int64("story_id", storyID), zap.Error(err))
		return fmt.Errorf("failed to cancel story %d: %w", storyID, err)
	}
	r.logger.Info("Story marked as cancelled", zap.Int64("story_id", storyID))
	return nil
}

func (r *RedisCancelRegistry) IsCancelled(ctx context.Context, storyID int64) (bool, error) {
	n, err := r.client.Exists(ctx, cancelKey(storyID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check cancel flag of story %d: %w", storyID, err)
	}
	return n > 0, nil
}

func (r *RedisCancelRegistry) Clear(ctx context.Context, storyID int64) error {
	if err := r.client.Del(ctx, cancelKey(storyID)).Err(); err != nil {
		return fmt.Errorf("failed to clear cancel flag of story %d: %w", storyID, err)
	}
	return nil
}

// MemoryCancelRegistry отметки отмены в памяти процесса.
type MemoryCancelRegistry struct {
	mu        sync.RWMutex
	cancelled map[int64]struct{}
}

var _ CancelRegistry = (*MemoryCancelRegistry)(nil)

func NewMemoryCancelRegistry() *MemoryCancelRegistry {
	return &MemoryCancelRegistry{cancelled: make(map[int64]struct{})}
}

func (r *MemoryCancelRegistry) Cancel(_ context.Context, storyID int64) error {
	r.mu.Lock()
	r.cancelled[storyID] = struct{}{}
	r.mu.Unlock()
	return nil
}

func (r *MemoryCancelRegistry) IsCancelled(_ context.Context, storyID int64) (bool, error) {
	r.mu.RLock()
	_, ok := r.cancelled[storyID]
	r.mu.RUnlock()
	return ok, nil
}

func (r *MemoryCancelRegistry) Clear(_ context.Context, storyID int64) error {
	r.mu.Lock()
	delete(r.cancelled, storyID)
	r.mu.Unlock()
	return nil
}

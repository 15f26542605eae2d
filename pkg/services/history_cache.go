package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mc-review/submission-engine/pkg/models"
)

// HistoryCache stores reconstructed histories. Implementations are best effort: failures are
// logged and treated as misses, never surfaced to callers.
type HistoryCache interface {
	GetContractHistory(ctx context.Context, contractID uuid.UUID) ([]*models.ContractRevisionSnapshot, bool)
	SetContractHistory(ctx context.Context, contractID uuid.UUID, history []*models.ContractRevisionSnapshot)
	GetRateHistory(ctx context.Context, rateID uuid.UUID) ([]*models.RateRevisionSnapshot, bool)
	SetRateHistory(ctx context.Context, rateID uuid.UUID, history []*models.RateRevisionSnapshot)
	// Invalidate drops the cached histories of the given entities on one side.
	Invalidate(ctx context.Context, side models.Side, ids ...uuid.UUID)
}

// NewHistoryCache returns a Redis-backed cache, or a no-op cache when client is nil.
func NewHistoryCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) HistoryCache {
	if client == nil {
		return noopHistoryCache{}
	}
	return &redisHistoryCache{
		client: client,
		ttl:    ttl,
		logger: logger.Named("history-cache"),
	}
}

type noopHistoryCache struct{}

var _ HistoryCache = noopHistoryCache{}

func (noopHistoryCache) GetContractHistory(context.Context, uuid.UUID) ([]*models.ContractRevisionSnapshot, bool) {
	return nil, false
}
func (noopHistoryCache) SetContractHistory(context.Context, uuid.UUID, []*models.ContractRevisionSnapshot) {
}
func (noopHistoryCache) GetRateHistory(context.Context, uuid.UUID) ([]*models.RateRevisionSnapshot, bool) {
	return nil, false
}
func (noopHistoryCache) SetRateHistory(context.Context, uuid.UUID, []*models.RateRevisionSnapshot) {}
func (noopHistoryCache) Invalidate(context.Context, models.Side, ...uuid.UUID)                      {}

type redisHistoryCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

var _ HistoryCache = (*redisHistoryCache)(nil)

func historyKey(side models.Side, id uuid.UUID) string {
	return fmt.Sprintf("mcr:history:%s:%s", side, id)
}

func (c *redisHistoryCache) GetContractHistory(ctx context.Context, contractID uuid.UUID) ([]*models.ContractRevisionSnapshot, bool) {
	var history []*models.ContractRevisionSnapshot
	ok := c.get(ctx, historyKey(models.SideContract, contractID), &history)
	return history, ok
}

func (c *redisHistoryCache) SetContractHistory(ctx context.Context, contractID uuid.UUID, history []*models.ContractRevisionSnapshot) {
	c.set(ctx, historyKey(models.SideContract, contractID), history)
}

func (c *redisHistoryCache) GetRateHistory(ctx context.Context, rateID uuid.UUID) ([]*models.RateRevisionSnapshot, bool) {
	var history []*models.RateRevisionSnapshot
	ok := c.get(ctx, historyKey(models.SideRate, rateID), &history)
	return history, ok
}

func (c *redisHistoryCache) SetRateHistory(ctx context.Context, rateID uuid.UUID, history []*models.RateRevisionSnapshot) {
	c.set(ctx, historyKey(models.SideRate, rateID), history)
}

func (c *redisHistoryCache) Invalidate(ctx context.Context, side models.Side, ids ...uuid.UUID) {
	if len(ids) == 0 {
		return
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, historyKey(side, id))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("Failed to invalidate cached histories",
			zap.String("side", side.String()),
			zap.Int("count", len(keys)),
			zap.Error(err))
	}
}

func (c *redisHistoryCache) get(ctx context.Context, key string, dest any) bool {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Failed to read cached history", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Warn("Discarding undecodable cached history", zap.String("key", key), zap.Error(err))
		_ = c.client.Del(ctx, key).Err()
		return false
	}
	return true
}

func (c *redisHistoryCache) set(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("Failed to encode history for cache", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("Failed to cache history", zap.String("key", key), zap.Error(err))
	}
}

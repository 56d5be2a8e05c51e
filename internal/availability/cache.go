package availability

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Cache holds computed slots per professional, day and duration. It is
// strictly a cache of engine output; schedule, time off and
// appointments remain the source of truth, and every write to those
// invalidates the professional's whole key prefix.
type Cache interface {
	GetDay(ctx context.Context, professionalID uuid.UUID, day time.Time, serviceDuration int) ([]Slot, bool)
	SetDay(ctx context.Context, professionalID uuid.UUID, day time.Time, serviceDuration int, slots []Slot)
}

type RedisSlotCache struct {
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

func NewRedisSlotCache(client *redis.Client, ttl time.Duration, log zerolog.Logger) *RedisSlotCache {
	return &RedisSlotCache{
		client: client,
		ttl:    ttl,
		log:    log.With().Str("component", "slot_cache").Logger(),
	}
}

func dayKey(professionalID uuid.UUID, day time.Time, serviceDuration int) string {
	return fmt.Sprintf("slots:%s:%s:%d", professionalID, day.Format("2006-01-02"), serviceDuration)
}

func (c *RedisSlotCache) GetDay(ctx context.Context, professionalID uuid.UUID, day time.Time, serviceDuration int) ([]Slot, bool) {
	data, err := c.client.Get(ctx, dayKey(professionalID, day, serviceDuration)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn().Err(err).Msg("slot cache read failed")
		}
		return nil, false
	}

	var slots []Slot
	if err := json.Unmarshal(data, &slots); err != nil {
		c.log.Warn().Err(err).Msg("slot cache entry corrupt, ignoring")
		return nil, false
	}
	return slots, true
}

func (c *RedisSlotCache) SetDay(ctx context.Context, professionalID uuid.UUID, day time.Time, serviceDuration int, slots []Slot) {
	data, err := json.Marshal(slots)
	if err != nil {
		c.log.Warn().Err(err).Msg("marshal slots for cache")
		return
	}
	if err := c.client.Set(ctx, dayKey(professionalID, day, serviceDuration), data, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Msg("slot cache write failed")
	}
}

// Invalidate drops every cached day for the professional. Scoped to the
// key prefix so one professional's writes never flush another's cache.
func (c *RedisSlotCache) Invalidate(ctx context.Context, professionalID uuid.UUID) {
	pattern := fmt.Sprintf("slots:%s:*", professionalID)

	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.log.Warn().Err(err).Str("pattern", pattern).Msg("slot cache scan failed")
		return
	}

	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.log.Warn().Err(err).Str("pattern", pattern).Msg("slot cache invalidation failed")
	}
}

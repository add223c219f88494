package dedup

import (
	"time"

	"github.com/inmobium/crm-messaging/pkg/logger"
	"github.com/inmobium/crm-messaging/pkg/redis"
)

type Config struct {
	// ProcessedTTL bounds how long a wamid marker lives. Provider retries
	// arrive within minutes; a day is comfortable.
	ProcessedTTL time.Duration
	KeyPrefix    string
}

func DefaultConfig() Config {
	return Config{
		ProcessedTTL: 24 * time.Hour,
		KeyPrefix:    "processed:",
	}
}

// Cache short-circuits duplicate webhook deliveries before they reach the
// database. It is a fast path only: the unique index on
// messages.provider_message_id remains the idempotency guarantee, so a cache
// miss or a redis outage is never an error.
type Cache struct {
	redis  redis.RedisAdapter
	config Config
}

// New returns a cache over the given adapter. A nil adapter disables the
// fast path; every id then reads as first-seen.
func New(adapter redis.RedisAdapter, config Config) *Cache {
	return &Cache{redis: adapter, config: config}
}

// MarkIfFirst reports whether this provider message id has not been seen
// before and marks it as seen.
func (c *Cache) MarkIfFirst(providerMessageID string) bool {
	if c == nil || c.redis == nil {
		return true
	}
	ok, err := c.redis.SetNX(c.config.KeyPrefix+providerMessageID, []byte("1"), c.config.ProcessedTTL)
	if err != nil {
		// Better to risk a redundant DB round-trip than to drop a message.
		logger.Warn("[dedup] marker write failed", "provider_message_id", providerMessageID, "error", err)
		return true
	}
	return ok
}

// Forget drops the marker so a provider retry can get through after a failed
// materialization.
func (c *Cache) Forget(providerMessageID string) {
	if c == nil || c.redis == nil {
		return
	}
	if err := c.redis.Del(c.config.KeyPrefix + providerMessageID); err != nil {
		logger.Warn("[dedup] marker delete failed", "provider_message_id", providerMessageID, "error", err)
	}
}

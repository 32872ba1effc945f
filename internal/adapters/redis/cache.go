package redis

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache holds the per-showtime seat availability map. Entries are
// short-lived and invalidated on every booking or release, so a stale
// read only ever lasts until the next write.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client, ttl: time.Minute}
}

func (c *Cache) Client() *redis.Client {
	return c.client
}

func seatsKey(showtimeID int64) string {
	return "seats:" + strconv.FormatInt(showtimeID, 10)
}

func (c *Cache) GetAvailability(ctx context.Context, showtimeID int64, dest interface{}) (bool, error) {
	val, err := c.client.Get(ctx, seatsKey(showtimeID)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(val, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Cache) SetAvailability(ctx context.Context, showtimeID int64, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, seatsKey(showtimeID), data, c.ttl).Err()
}

func (c *Cache) Invalidate(ctx context.Context, showtimeID int64) error {
	return c.client.Del(ctx, seatsKey(showtimeID)).Err()
}

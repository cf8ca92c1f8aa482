package realtime

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// NewRedis creates a new Redis client
func NewRedis(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// RedisRelay mirrors hub deliveries onto "notify:<room>" so other processes
// (a second API node, a push gateway) can pick them up.
type RedisRelay struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisRelay(rdb *redis.Client) *RedisRelay {
	return &RedisRelay{rdb: rdb, prefix: "notify:"}
}

func (r *RedisRelay) Channel(room string) string {
	return r.prefix + room
}

func (r *RedisRelay) Publish(ctx context.Context, room string, payload []byte) error {
	return r.rdb.Publish(ctx, r.Channel(room), payload).Err()
}

package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// consumeScript deletes the key only when the stored code matches, so a
// wrong guess does not burn the code and a right one can be used once.
var consumeScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// CodeStore keeps short-lived single-use verification codes per phone.
type CodeStore struct {
	rdb    *redis.Client
	prefix string
}

func NewCodeStore(rdb *redis.Client) *CodeStore {
	return &CodeStore{rdb: rdb, prefix: "verify_code:"}
}

func (s *CodeStore) Put(ctx context.Context, phone, code string, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, s.prefix+phone, code, ttl).Err(); err != nil {
		return fmt.Errorf("store verification code: %w", err)
	}
	return nil
}

// Consume reports whether code matched; a match invalidates it.
func (s *CodeStore) Consume(ctx context.Context, phone, code string) (bool, error) {
	n, err := consumeScript.Run(ctx, s.rdb, []string{s.prefix + phone}, code).Int()
	if err != nil {
		return false, fmt.Errorf("consume verification code: %w", err)
	}
	return n == 1, nil
}

package app

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var callbackReplayScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

// RedisReplayGuard implements distributed callback deduplication using Redis. It is a
// best-effort fast path; the database conditional update remains the authoritative
// idempotency barrier, so every failure mode here degrades to "first seen".
type RedisReplayGuard struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisReplayGuard(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisReplayGuard {
	trimmedPrefix := strings.TrimSpace(prefix)
	if trimmedPrefix == "" {
		trimmedPrefix = "fanvault:payment:replay"
	}
	trimmedPrefix = strings.TrimSuffix(trimmedPrefix, ":")
	if ttl < time.Second {
		ttl = time.Second
	}

	return &RedisReplayGuard{
		client: client,
		prefix: trimmedPrefix,
		ttl:    ttl,
	}
}

// FirstSeen reports whether the key is new within the TTL window.
func (r *RedisReplayGuard) FirstSeen(ctx context.Context, key string) bool {
	if r == nil || r.client == nil {
		return true
	}

	normalized := strings.TrimSpace(key)
	if normalized == "" {
		return true
	}

	fullKey := r.prefix + ":" + normalized
	rawResult, err := callbackReplayScript.Run(ctx, r.client, []string{fullKey}, r.ttl.Milliseconds()).Result()
	if err != nil {
		log.Printf("level=warn component=replay_guard msg=\"redis check failed; treating as first delivery\" err=%v", err)
		return true
	}

	count, ok := rawResult.(int64)
	if !ok {
		log.Printf("level=warn component=replay_guard msg=\"unexpected redis response shape\" type=%T", rawResult)
		return true
	}
	return count == 1
}

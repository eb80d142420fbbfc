package election

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	p4v1 "github.com/p4lang/p4runtime/go/p4/v1"
)

// nextScript bumps a device's election counter and records who took it.
// Returns the new counter value.
var nextScript = redis.NewScript(`
local key = KEYS[1]
local low = redis.call("HINCRBY", key, "low", 1)
redis.call("HSET", key, "holder", ARGV[1], "updated", ARGV[2])
return low
`)

// RedisStore keeps election counters in Redis so that several controller
// processes never reuse an id. Counters are stored as P4RT_ELECTION|<device>
// hashes with low, holder and updated fields.
type RedisStore struct {
	client *redis.Client
	holder string
}

// NewRedisStore creates a store on the Redis server at addr.
func NewRedisStore(addr string, db int, holder string) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr: addr,
			DB:   db,
		}),
		holder: holder,
	}
}

// Connect tests the connection
func (s *RedisStore) Connect(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Next implements Store.
func (s *RedisStore) Next(ctx context.Context, deviceID string) (*p4v1.Uint128, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	low, err := nextScript.Run(ctx, s.client, []string{Key(deviceID)}, s.holder, now).Int64()
	if err != nil {
		return nil, fmt.Errorf("allocating election id for %s: %w", deviceID, err)
	}
	return &p4v1.Uint128{Low: uint64(low)}, nil
}

// Current implements Store.
func (s *RedisStore) Current(ctx context.Context, deviceID string) (*Record, error) {
	vals, err := s.client.HGetAll(ctx, Key(deviceID)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading election id for %s: %w", deviceID, err)
	}
	if len(vals) == 0 {
		return nil, nil
	}

	low, err := strconv.ParseUint(vals["low"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing election id for %s: %w", deviceID, err)
	}
	r := &Record{
		ID:     &p4v1.Uint128{Low: low},
		Holder: vals["holder"],
	}
	if ts, ok := vals["updated"]; ok {
		r.Updated, _ = time.Parse(time.RFC3339, ts)
	}
	return r, nil
}

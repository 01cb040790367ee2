package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Version stamps live in a sibling "<key>:ver" counter so that plain GETs
// stay single-command. The CAS script keeps the value and counter in step.
const casScript = `
local current = tonumber(redis.call("GET", KEYS[2]) or "0")
if current ~= tonumber(ARGV[1]) then
  return {0, current}
end
redis.call("SET", KEYS[1], ARGV[2])
local next = redis.call("INCR", KEYS[2])
return {1, next}
`

var casLua = redis.NewScript(casScript)

// Redis is a [Backend] over a Redis deployment. It is the medium to use
// when several application contexts (tabs, hosts) must share one registry.
type Redis struct {
	client redis.UniversalClient
}

// NewRedis creates a backend over the given client. The client is not
// pinged; the first operation surfaces connectivity problems.
func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

func verKey(key string) string {
	return key + ":ver"
}

// Get implements [Backend].
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return data, nil
}

// GetVersioned implements [Backend].
func (r *Redis) GetVersioned(ctx context.Context, key string) (Versioned, error) {
	values, err := r.client.MGet(ctx, key, verKey(key)).Result()
	if err != nil {
		return Versioned{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(values) != 2 || values[0] == nil {
		return Versioned{}, ErrNotFound
	}

	value, ok := values[0].(string)
	if !ok {
		return Versioned{}, fmt.Errorf("%w: unexpected value type", ErrUnavailable)
	}

	var version uint64
	if raw, ok := values[1].(string); ok {
		if _, err := fmt.Sscanf(raw, "%d", &version); err != nil {
			return Versioned{}, fmt.Errorf("%w: invalid version stamp", ErrUnavailable)
		}
	}

	return Versioned{Value: []byte(value), Version: version}, nil
}

// Set implements [Backend].
func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, value, 0)
		pipe.Incr(ctx, verKey(key))
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// CompareAndSwap implements [Backend] with a Lua compare-and-swap so the
// version check and the write are a single atomic step.
func (r *Redis) CompareAndSwap(ctx context.Context, key string, expected uint64, value []byte) (uint64, error) {
	result, err := casLua.Run(ctx, r.client, []string{key, verKey(key)}, expected, value).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) != 2 {
		return 0, fmt.Errorf("%w: invalid cas script response", ErrUnavailable)
	}
	status, ok := parts[0].(int64)
	if !ok {
		return 0, fmt.Errorf("%w: invalid cas script status", ErrUnavailable)
	}
	version, ok := parts[1].(int64)
	if !ok {
		return 0, fmt.Errorf("%w: invalid cas script version", ErrUnavailable)
	}

	if status == 0 {
		return uint64(version), ErrVersionMismatch
	}
	return uint64(version), nil
}

// Delete implements [Backend].
func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key, verKey(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

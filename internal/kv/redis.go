package kv

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis adapter.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// RedisStore implements Store on Redis. A Bitfield batch is sent as a single
// BITFIELD command, which Redis executes atomically with replies in order.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore connects a new client.
func NewRedisStore(cfg RedisConfig) *RedisStore {
	return NewRedisStoreFromClient(redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}))
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// Client exposes the underlying client for sharing its connection pool.
func (s *RedisStore) Client() redis.UniversalClient {
	return s.client
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// bitfieldArgs renders ops as BITFIELD sub-commands. "#i" offsets are
// multiplied by the type width on the server.
func bitfieldArgs(width int, ops []BitOp) []any {
	typ := "u" + strconv.Itoa(width)
	args := make([]any, 0, len(ops)*4)
	for _, op := range ops {
		offset := "#" + strconv.Itoa(op.Index)
		if op.Set {
			args = append(args, "SET", typ, offset, int64(op.Value))
		} else {
			args = append(args, "GET", typ, offset)
		}
	}
	return args
}

func (s *RedisStore) Bitfield(ctx context.Context, key string, width int, ops []BitOp) ([]uint8, error) {
	if len(ops) == 0 {
		return nil, nil
	}
	if width < 1 || width > 8 {
		return nil, fmt.Errorf("kv: bitfield width %d out of range", width)
	}
	res, err := s.client.BitField(ctx, key, bitfieldArgs(width, ops)...).Result()
	if err != nil {
		return nil, fmt.Errorf("kv: bitfield %s: %w", key, err)
	}
	if len(res) != len(ops) {
		return nil, fmt.Errorf("kv: bitfield %s returned %d results for %d ops", key, len(res), len(ops))
	}
	out := make([]uint8, len(res))
	for i, v := range res {
		out[i] = uint8(v)
	}
	return out, nil
}

func (s *RedisStore) Bytes(ctx context.Context, key string) ([]byte, error) {
	b, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return b, err
}

func (s *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	return s.client.Incr(ctx, key).Result()
}

func (s *RedisStore) Counter(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

func (s *RedisStore) HIncrBy(ctx context.Context, key, field string, n int64) (int64, error) {
	return s.client.HIncrBy(ctx, key, field, n).Result()
}

func (s *RedisStore) HGetAll(ctx context.Context, key string) (map[string]int64, error) {
	raw, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(raw))
	for k, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("kv: hash %s field %s: %w", key, k, err)
		}
		out[k] = n
	}
	return out, nil
}

func (s *RedisStore) RPush(ctx context.Context, key string, values ...[]byte) error {
	if len(values) == 0 {
		return nil
	}
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return s.client.RPush(ctx, key, args...).Err()
}

func (s *RedisStore) Drain(ctx context.Context, key string) ([][]byte, error) {
	var lrange *redis.StringSliceCmd
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		lrange = p.LRange(ctx, key, 0, -1)
		p.Del(ctx, key)
		return nil
	})
	if err != nil {
		return nil, err
	}
	vals := lrange.Val()
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out, nil
}

func (s *RedisStore) SAdd(ctx context.Context, key, member string) error {
	return s.client.SAdd(ctx, key, member).Err()
}

func (s *RedisStore) SIsMember(ctx context.Context, key, member string) (bool, error) {
	return s.client.SIsMember(ctx, key, member).Result()
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return b, err
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	return s.client.Set(ctx, key, value, 0).Err()
}

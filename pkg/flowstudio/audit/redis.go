package audit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces audit keys.
const DefaultRedisPrefix = "flowstudio:audit:"

// RedisStore persists records in Redis. Each run uses three keys: a hash of
// encoded records, a sorted set ordering them by sequence, and a hash of
// save timestamps. All three expire together after the configured TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithRedisPrefix overrides DefaultRedisPrefix.
func WithRedisPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.prefix = prefix }
}

// WithRedisTTL expires a run's records ttl after its last save. Zero keeps
// them forever.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) { s.ttl = ttl }
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, prefix: DefaultRedisPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenRedisStore connects to the Redis server at url and pings it.
func OpenRedisStore(ctx context.Context, url string, opts ...RedisOption) (*RedisStore, error) {
	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisStore(client, opts...), nil
}

func (s *RedisStore) dataKey(runID string) string  { return s.prefix + runID + ":data" }
func (s *RedisStore) orderKey(runID string) string { return s.prefix + runID + ":order" }
func (s *RedisStore) timeKey(runID string) string  { return s.prefix + runID + ":time" }

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, runID string, nodeID int64, data []byte) error {
	field := strconv.FormatInt(nodeID, 10)

	last, err := s.client.ZRevRangeWithScores(ctx, s.orderKey(runID), 0, 0).Result()
	if err != nil {
		return s.fail("save audit record", err)
	}
	seq := 1.0
	if len(last) > 0 {
		seq = last[0].Score + 1
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.dataKey(runID), field, data)
		pipe.ZAdd(ctx, s.orderKey(runID), redis.Z{Score: seq, Member: field})
		pipe.HSet(ctx, s.timeKey(runID), field, time.Now().UTC().Format(time.RFC3339Nano))
		if s.ttl > 0 {
			for _, key := range []string{s.dataKey(runID), s.orderKey(runID), s.timeKey(runID)} {
				pipe.Expire(ctx, key, s.ttl)
			}
		}
		return nil
	})
	if err != nil {
		return s.fail("save audit record", err)
	}
	return nil
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context, runID string, nodeID int64) ([]byte, error) {
	data, err := s.client.HGet(ctx, s.dataKey(runID), strconv.FormatInt(nodeID, 10)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, s.fail("load audit record", err)
	}
	return data, nil
}

// List implements Store.
func (s *RedisStore) List(ctx context.Context, runID string) ([]Info, error) {
	members, err := s.client.ZRangeWithScores(ctx, s.orderKey(runID), 0, -1).Result()
	if err != nil {
		return nil, s.fail("list audit records", err)
	}
	times, err := s.client.HGetAll(ctx, s.timeKey(runID)).Result()
	if err != nil {
		return nil, s.fail("list audit records", err)
	}

	infos := make([]Info, 0, len(members))
	for _, m := range members {
		field, _ := m.Member.(string)
		nodeID, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("list audit records: bad member %q: %w", field, err)
		}
		size, err := s.client.HStrLen(ctx, s.dataKey(runID), field).Result()
		if err != nil {
			return nil, s.fail("list audit records", err)
		}
		ts, _ := time.Parse(time.RFC3339Nano, times[field])
		infos = append(infos, Info{
			RunID:     runID,
			NodeID:    nodeID,
			Sequence:  int(m.Score),
			Timestamp: ts,
			Size:      size,
		})
	}
	return infos, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, runID string, nodeID int64) error {
	field := strconv.FormatInt(nodeID, 10)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, s.dataKey(runID), field)
		pipe.ZRem(ctx, s.orderKey(runID), field)
		pipe.HDel(ctx, s.timeKey(runID), field)
		return nil
	})
	if err != nil {
		return s.fail("delete audit record", err)
	}
	return nil
}

// DeleteRun implements Store.
func (s *RedisStore) DeleteRun(ctx context.Context, runID string) error {
	if err := s.client.Del(ctx, s.dataKey(runID), s.orderKey(runID), s.timeKey(runID)).Err(); err != nil {
		return s.fail("delete run audit records", err)
	}
	return nil
}

func (s *RedisStore) fail(op string, err error) error {
	if errors.Is(err, redis.ErrClosed) {
		return fmt.Errorf("%s: %w", op, ErrStoreClosed)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

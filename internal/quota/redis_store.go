package quota

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/unclebandit/campaign-dispatch/internal/model"
)

// RedisStore keeps quota records in Redis. Conditional writes run as Lua scripts,
// which Redis executes atomically.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
}

const (
	dailyKeyTTL  = 72 * time.Hour
	windowKeyTTL = 7 * 24 * time.Hour
)

// KEYS[1] counter, ARGV[1] limit, ARGV[2] ttl seconds. Returns {ok, count}.
var incrementIfBelow = redis.NewScript(`
local c = tonumber(redis.call('GET', KEYS[1]) or '0')
if c >= tonumber(ARGV[1]) then
  return {0, c}
end
c = redis.call('INCR', KEYS[1])
redis.call('EXPIRE', KEYS[1], ARGV[2])
return {1, c}
`)

// KEYS[1] window hash, ARGV[1] now ms, ARGV[2] cutoff ms, ARGV[3] ttl seconds. Returns 1 when touched.
var touchIfActive = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'status') ~= 'open' then
  return 0
end
local last = tonumber(redis.call('HGET', KEYS[1], 'last_message_at') or '0')
if last <= tonumber(ARGV[2]) then
  return 0
end
redis.call('HINCRBY', KEYS[1], 'message_count', 1)
redis.call('HSET', KEYS[1], 'last_message_at', ARGV[1])
redis.call('EXPIRE', KEYS[1], ARGV[3])
return 1
`)

// KEYS[1] window hash. Returns 1 when an open window was closed.
var closeIfOpen = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'status') ~= 'open' then
  return 0
end
redis.call('HSET', KEYS[1], 'status', 'closed')
return 1
`)

func NewRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "quota"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

// NewRedisStoreFromURL parses a redis:// URL and verifies the connection.
func NewRedisStoreFromURL(ctx context.Context, url string) (*RedisStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisStore(rdb, ""), nil
}

func (s *RedisStore) Close() error { return s.rdb.Close() }

func (s *RedisStore) dailyKey(day string) string  { return s.prefix + ":daily:" + day }
func (s *RedisStore) windowKey(phone string) string { return s.prefix + ":window:" + phone }

func (s *RedisStore) GetWindow(ctx context.Context, phone string) (*model.ConversationWindow, error) {
	vals, err := s.rdb.HGetAll(ctx, s.windowKey(phone)).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, nil
	}
	started, err := strconv.ParseInt(vals["conversation_started_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("window %s: started_at: %w", phone, err)
	}
	last, err := strconv.ParseInt(vals["last_message_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("window %s: last_message_at: %w", phone, err)
	}
	count, err := strconv.Atoi(vals["message_count"])
	if err != nil {
		return nil, fmt.Errorf("window %s: message_count: %w", phone, err)
	}
	return &model.ConversationWindow{
		Phone:                 phone,
		ConversationStartedAt: time.UnixMilli(started),
		LastMessageAt:         time.UnixMilli(last),
		Status:                model.WindowStatus(vals["status"]),
		MessageCount:          count,
	}, nil
}

func (s *RedisStore) TouchWindow(ctx context.Context, phone string, now time.Time) (bool, error) {
	cutoff := now.Add(-model.ConversationWindowTTL)
	n, err := touchIfActive.Run(ctx, s.rdb, []string{s.windowKey(phone)},
		now.UnixMilli(), cutoff.UnixMilli(), int(windowKeyTTL.Seconds())).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *RedisStore) OpenWindow(ctx context.Context, phone string, now time.Time) error {
	key := s.windowKey(phone)
	ms := now.UnixMilli()
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key,
			"conversation_started_at", ms,
			"last_message_at", ms,
			"status", string(model.WindowOpen),
			"message_count", 1,
		)
		p.Expire(ctx, key, windowKeyTTL)
		return nil
	})
	return err
}

func (s *RedisStore) CloseWindow(ctx context.Context, phone string) (bool, error) {
	n, err := closeIfOpen.Run(ctx, s.rdb, []string{s.windowKey(phone)}).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *RedisStore) IncrementDailyIfBelow(ctx context.Context, day string, limit int) (int, bool, error) {
	res, err := incrementIfBelow.Run(ctx, s.rdb, []string{s.dailyKey(day)}, limit, int(dailyKeyTTL.Seconds())).Int64Slice()
	if err != nil {
		return 0, false, err
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("unexpected script reply %v", res)
	}
	return int(res[1]), res[0] == 1, nil
}

func (s *RedisStore) GetDailyCount(ctx context.Context, day string) (int, error) {
	n, err := s.rdb.Get(ctx, s.dailyKey(day)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

var _ Store = (*RedisStore)(nil)

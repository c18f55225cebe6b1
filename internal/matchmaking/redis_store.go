package matchmaking

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/playchess/backend/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Keys per mode:
//
//	queue:mode:<mode>     ZSET  member=playerId score=rating
//	queue:entries:<mode>  HASH  playerId -> JSON QueueEntry
var (
	addScript = redis.NewScript(`
redis.call('ZADD', KEYS[1], ARGV[1], ARGV[2])
redis.call('HSET', KEYS[2], ARGV[2], ARGV[3])
return 1`)

	removeScript = redis.NewScript(`
redis.call('ZREM', KEYS[1], ARGV[1])
return redis.call('HDEL', KEYS[2], ARGV[1])`)

	removePairScript = redis.NewScript(`
if ARGV[1] == ARGV[2] then return 0 end
if redis.call('HEXISTS', KEYS[2], ARGV[1]) == 0 then return 0 end
if redis.call('HEXISTS', KEYS[2], ARGV[2]) == 0 then return 0 end
redis.call('ZREM', KEYS[1], ARGV[1], ARGV[2])
redis.call('HDEL', KEYS[2], ARGV[1], ARGV[2])
return 1`)
)

// listChunk bounds the ids per HMGET; a queue can be far larger than what one
// call (or a Lua unpack) takes.
const listChunk = 500

// RedisQueueStore shares queues between instances through Redis. Each
// mutation is a single Lua script, so it is atomic on the server. List is a
// snapshot and is read without a script.
type RedisQueueStore struct {
	rdb *redis.Client
	log zerolog.Logger
}

func NewRedisQueueStore(rdb *redis.Client, log zerolog.Logger) *RedisQueueStore {
	return &RedisQueueStore{rdb: rdb, log: log.With().Str("component", "queue_store").Logger()}
}

func queueKeys(mode string) []string {
	return []string{"queue:mode:" + mode, "queue:entries:" + mode}
}

func (s *RedisQueueStore) Add(ctx context.Context, mode string, entry models.QueueEntry) error {
	b, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal queue entry: %w", err)
	}
	if err := addScript.Run(ctx, s.rdb, queueKeys(mode), entry.Rating, entry.PlayerID, b).Err(); err != nil {
		return fmt.Errorf("add %s to %s: %w", entry.PlayerID, mode, err)
	}
	return nil
}

func (s *RedisQueueStore) Remove(ctx context.Context, mode, playerID string) (bool, error) {
	n, err := removeScript.Run(ctx, s.rdb, queueKeys(mode), playerID).Int64()
	if err != nil {
		return false, fmt.Errorf("remove %s from %s: %w", playerID, mode, err)
	}
	return n > 0, nil
}

func (s *RedisQueueStore) RemovePair(ctx context.Context, mode, a, b string) (bool, error) {
	n, err := removePairScript.Run(ctx, s.rdb, queueKeys(mode), a, b).Int64()
	if err != nil {
		return false, fmt.Errorf("remove pair %s/%s from %s: %w", a, b, mode, err)
	}
	return n == 1, nil
}

func (s *RedisQueueStore) List(ctx context.Context, mode string) ([]models.QueueEntry, error) {
	keys := queueKeys(mode)
	ids, err := s.rdb.ZRange(ctx, keys[0], 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", mode, err)
	}
	if len(ids) == 0 {
		return []models.QueueEntry{}, nil
	}

	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.SliceCmd, 0, (len(ids)+listChunk-1)/listChunk)
	for start := 0; start < len(ids); start += listChunk {
		end := start + listChunk
		if end > len(ids) {
			end = len(ids)
		}
		cmds = append(cmds, pipe.HMGet(ctx, keys[1], ids[start:end]...))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("list %s entries: %w", mode, err)
	}

	entries := make([]models.QueueEntry, 0, len(ids))
	for _, cmd := range cmds {
		for _, item := range cmd.Val() {
			str, ok := item.(string)
			if !ok {
				// left or matched between ZRANGE and HMGET, or a stray member
				continue
			}
			var e models.QueueEntry
			if err := json.Unmarshal([]byte(str), &e); err != nil {
				s.log.Warn().Err(err).Str("mode", mode).Msg("skipping malformed queue entry")
				continue
			}
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (s *RedisQueueStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

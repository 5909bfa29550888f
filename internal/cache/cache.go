// cache содержит key-value контракт поверх Redis и два типизированных кэша над ним:
// сессии refresh-токенов (Sessions) и снимки списков задач (Todos).
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// KV — минимальный контракт key-value кэша.
type KV interface {
	// Get возвращает значение и признак его наличия. Отсутствие ключа — не ошибка.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set сохраняет значение с TTL, перезаписывая прежнее.
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	// SetIfGuard сохраняет значение, только если счётчик guardKey всё ещё равен
	// guard (отсутствующий счётчик считается нулём). Возвращает признак записи.
	SetIfGuard(ctx context.Context, key string, val []byte, ttl time.Duration, guardKey string, guard int64) (bool, error)
	// Incr атомарно увеличивает счётчик и продлевает его TTL.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// Del удаляет ключи; отсутствие ключа — не ошибка.
	Del(ctx context.Context, keys ...string) error
	// Ping проверяет доступность хранилища.
	Ping(ctx context.Context) error
	// Close закрывает клиент.
	Close() error
}

type redisKV struct {
	rdb *redis.Client
}

// NewRedis создаёт клиент Redis из URL (например, redis://:pass@host:6379/0).
func NewRedis(ctx context.Context, redisURL string) (KV, error) {
	const op = "cache.NewRedis"

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("%s: parse url: %w", op, err)
	}

	rdb := redis.NewClient(opt)

	// Fail-fast на старте.
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}

	return &redisKV{rdb: rdb}, nil
}

// NewRedisFromClient оборачивает готовый клиент.
func NewRedisFromClient(rdb *redis.Client) KV {
	return &redisKV{rdb: rdb}
}

func (c *redisKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	const op = "cache.redisKV.Get"

	b, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}

		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	return b, true, nil
}

func (c *redisKV) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	const op = "cache.redisKV.Set"

	if err := c.rdb.Set(ctx, key, val, ttl).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// setIfGuard: KEYS[1] — значение, KEYS[2] — счётчик;
// ARGV[1] — значение, ARGV[2] — ожидаемый счётчик, ARGV[3] — TTL в мс.
var setIfGuard = redis.NewScript(`
local cur = redis.call("GET", KEYS[2])
if not cur then cur = "0" end
if cur ~= ARGV[2] then return 0 end
if tonumber(ARGV[3]) > 0 then
  redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
else
  redis.call("SET", KEYS[1], ARGV[1])
end
return 1
`)

func (c *redisKV) SetIfGuard(ctx context.Context, key string, val []byte, ttl time.Duration, guardKey string, guard int64) (bool, error) {
	const op = "cache.redisKV.SetIfGuard"

	n, err := setIfGuard.Run(ctx, c.rdb,
		[]string{key, guardKey},
		val, strconv.FormatInt(guard, 10), ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return n == 1, nil
}

func (c *redisKV) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	const op = "cache.redisKV.Incr"

	var incr *redis.IntCmd
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, key)
		if ttl > 0 {
			p.Expire(ctx, key, ttl)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return incr.Val(), nil
}

func (c *redisKV) Del(ctx context.Context, keys ...string) error {
	const op = "cache.redisKV.Del"

	if len(keys) == 0 {
		return nil
	}

	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (c *redisKV) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *redisKV) Close() error { return c.rdb.Close() }

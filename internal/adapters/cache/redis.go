package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/surebet/internal/domain"
	"github.com/alejandrodnm/surebet/internal/ports"
	"github.com/redis/go-redis/v9"
)

var _ ports.SetCache = (*RedisCache)(nil)

// RedisConfig holds connection parameters for the Redis cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// RedisCache comparte la vista de los sets entre réplicas del servidor.
//
// Key schema:
//
//	betset:{id} - JSON del set con sus dos patas
//
// Put compara versiones dentro de un script Lua para que el check y el SET
// sean atómicos entre réplicas.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisCache conecta y hace ping. Un Redis caído al arrancar es un error
// de configuración; una vez arriba, los fallos solo se registran.
func NewRedisCache(ctx context.Context, cfg RedisConfig) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("cache.NewRedisCache: ping %s: %w", cfg.Addr, err)
	}
	return &RedisCache{rdb: rdb, ttl: cfg.TTL}, nil
}

// NewRedisCacheFromClient envuelve un cliente ya creado.
func NewRedisCacheFromClient(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func setKey(id string) string { return "betset:" + id }

func (c *RedisCache) Get(ctx context.Context, id string) (domain.BetSet, bool) {
	data, err := c.rdb.Get(ctx, setKey(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("cache: redis get failed", "set_id", id, "err", err)
		}
		return domain.BetSet{}, false
	}

	var set domain.BetSet
	if err := json.Unmarshal(data, &set); err != nil {
		slog.Warn("cache: discarding undecodable entry", "set_id", id, "err", err)
		c.Invalidate(ctx, id)
		return domain.BetSet{}, false
	}
	return set, true
}

// putScript escribe la entrada salvo que la guardada tenga una versión mayor.
// ARGV: json, version, ttl en ms (0 = sin expiración).
var putScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur then
	local ok, doc = pcall(cjson.decode, cur)
	if ok and type(doc) == 'table' and tonumber(doc.version) and tonumber(doc.version) > tonumber(ARGV[2]) then
		return 0
	end
end
if tonumber(ARGV[3]) > 0 then
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
else
	redis.call('SET', KEYS[1], ARGV[1])
end
return 1
`)

func (c *RedisCache) Put(ctx context.Context, set domain.BetSet) {
	data, err := json.Marshal(set)
	if err != nil {
		slog.Warn("cache: marshal set", "set_id", set.ID, "err", err)
		return
	}
	ttl := int64(0)
	if c.ttl > 0 {
		ttl = max(c.ttl.Milliseconds(), 1)
	}
	if err := putScript.Run(ctx, c.rdb, []string{setKey(set.ID)}, data, set.Version, ttl).Err(); err != nil {
		slog.Warn("cache: redis put failed", "set_id", set.ID, "err", err)
	}
}

func (c *RedisCache) Invalidate(ctx context.Context, id string) {
	if err := c.rdb.Del(ctx, setKey(id)).Err(); err != nil {
		slog.Warn("cache: redis del failed", "set_id", id, "err", err)
	}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("cache: redis ping: %w", err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.rdb.Close()
}

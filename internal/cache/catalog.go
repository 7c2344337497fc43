// Package cache keeps the advisory catalog snapshot served to carts.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"kasir/m/domain"
)

const (
	catalogKey = "kasir:catalog:products"
	versionKey = "kasir:catalog:version"
)

// Catalog caches the full product listing. A miss or failure only means the
// caller reads the database.
//
// Get returns the current catalog version along with the snapshot; a caller
// that fills the cache after a miss passes that version to Set. Invalidate
// bumps the version, so a fill that started before it is never served.
type Catalog interface {
	Get(ctx context.Context) ([]domain.Product, uint64, bool)
	Set(ctx context.Context, version uint64, products []domain.Product)
	Invalidate(ctx context.Context) error
}

type kv interface {
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type snapshot struct {
	Version  uint64           `json:"version"`
	Products []domain.Product `json:"products"`
}

type Redis struct {
	client *redis.Client
	kv     kv
	ttl    time.Duration
	log    zerolog.Logger
}

// NewRedis parses redisURL; it does not contact the server.
func NewRedis(redisURL string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	return &Redis{
		client: client,
		kv:     client,
		ttl:    ttl,
		log:    log.With().Str("component", "catalog_cache").Logger(),
	}, nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Get(ctx context.Context) ([]domain.Product, uint64, bool) {
	vals, err := r.kv.MGet(ctx, versionKey, catalogKey).Result()
	if err != nil {
		r.log.Warn().Err(err).Msg("catalog cache read failed")
		return nil, 0, false
	}
	version, err := parseVersion(vals[0])
	if err != nil {
		r.log.Warn().Err(err).Msg("catalog cache version corrupt")
		return nil, 0, false
	}
	data, ok := vals[1].(string)
	if !ok {
		return nil, version, false
	}

	var snap snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		r.log.Warn().Err(err).Msg("catalog cache entry corrupt")
		return nil, version, false
	}
	if snap.Version != version {
		r.log.Debug().Uint64("snapshot", snap.Version).Uint64("current", version).Msg("catalog cache entry stale")
		return nil, version, false
	}
	return snap.Products, version, true
}

func (r *Redis) Set(ctx context.Context, version uint64, products []domain.Product) {
	data, err := json.Marshal(snapshot{Version: version, Products: products})
	if err != nil {
		r.log.Warn().Err(err).Msg("catalog cache encode failed")
		return
	}
	if err := r.kv.Set(ctx, catalogKey, data, r.ttl).Err(); err != nil {
		r.log.Warn().Err(err).Msg("catalog cache write failed")
	}
}

// Invalidate bumps the version before deleting the snapshot; the bump alone
// is enough to stop serving it.
func (r *Redis) Invalidate(ctx context.Context) error {
	if err := r.kv.Incr(ctx, versionKey).Err(); err != nil {
		return fmt.Errorf("invalidate catalog cache: %w", err)
	}
	if err := r.kv.Del(ctx, catalogKey).Err(); err != nil {
		r.log.Warn().Err(err).Msg("catalog cache delete failed")
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

// Nop never hits.
type Nop struct{}

func (Nop) Get(context.Context) ([]domain.Product, uint64, bool) { return nil, 0, false }

func (Nop) Set(context.Context, uint64, []domain.Product) {}

func (Nop) Invalidate(context.Context) error { return nil }

func parseVersion(v any) (uint64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, nil
	}
	return strconv.ParseUint(s, 10, 64)
}

package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/leighmacdonald/watchdog/internal/store"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "watchdog:player:"

// Redis shares the player cache between watchdog processes. Errors are logged and reported
// as misses, the cache is never the source of truth.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

func NewRedis(ctx context.Context, logger *zap.Logger, url string, ttl time.Duration) (*Redis, error) {
	opts, errParse := redis.ParseURL(url)
	if errParse != nil {
		return nil, errors.Wrap(errParse, "Invalid redis url")
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()

	if errPing := client.Ping(pingCtx).Err(); errPing != nil {
		_ = client.Close()

		return nil, errors.Wrap(errPing, "Failed to connect to redis")
	}

	return NewRedisWithClient(logger, client, ttl), nil
}

func NewRedisWithClient(logger *zap.Logger, client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl, log: logger.Named("redis")}
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) Get(ctx context.Context, id string) (store.PlayerIdentity, bool) {
	var player store.PlayerIdentity

	data, errGet := r.client.Get(ctx, keyPrefix+id).Bytes()
	if errGet != nil {
		if !errors.Is(errGet, redis.Nil) {
			r.log.Error("Failed to read cached player", zap.String("id", id), zap.Error(errGet))
		}

		return player, false
	}

	if errUnmarshal := json.Unmarshal(data, &player); errUnmarshal != nil {
		r.log.Error("Failed to decode cached player", zap.String("id", id), zap.Error(errUnmarshal))

		return player, false
	}

	return player, true
}

func (r *Redis) Set(ctx context.Context, player store.PlayerIdentity) {
	if player.ID == "" {
		return
	}

	data, errMarshal := json.Marshal(player)
	if errMarshal != nil {
		r.log.Error("Failed to encode player", zap.String("id", player.ID), zap.Error(errMarshal))

		return
	}

	if errSet := r.client.Set(ctx, keyPrefix+player.ID, data, r.ttl).Err(); errSet != nil {
		r.log.Error("Failed to cache player", zap.String("id", player.ID), zap.Error(errSet))
	}
}

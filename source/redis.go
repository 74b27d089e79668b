package source

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisConfig stores configuration of redis source.
type RedisConfig struct {
	Addr        string        `yaml:"addr"        env:"ADDR"`
	Password    string        `yaml:"password"    env:"PASSWORD"`
	DB          int           `yaml:"db"          env:"DB"`
	DialTimeout time.Duration `yaml:"dialTimeout" env:"DIAL_TIMEOUT"`
}

// NewRedis connects to redis.
func NewRedis(ctx context.Context, config RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        config.Addr,
		Password:    config.Password,
		DB:          config.DB,
		DialTimeout: config.DialTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "connecting to redis at %s failed", config.Addr)
	}

	return &Redis{client: client}, nil
}

// Redis serves tiles stored under tile:{z}:{x}:{y} keys. Locator is formatted as redis:///{z}/{x}/{y}.
type Redis struct {
	client *redis.Client
}

// Put stores the tile.
func (r *Redis) Put(ctx context.Context, a Address, data []byte, ttl time.Duration) error {
	return errors.WithStack(r.client.Set(ctx, redisKey(a), data, ttl).Err())
}

// Fetch reads the tile.
func (r *Redis) Fetch(ctx context.Context, locator string) ([]byte, error) {
	a, err := ParseAddress(locator)
	if err != nil {
		return nil, err
	}

	data, err := r.client.Get(ctx, redisKey(a)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, errors.Wrapf(ErrNotFound, "tile %s", a)
	case err != nil:
		return nil, errors.WithStack(err)
	}
	return data, nil
}

// Close closes the client.
func (r *Redis) Close() error {
	return errors.WithStack(r.client.Close())
}

func redisKey(a Address) string {
	return fmt.Sprintf("tile:%d:%d:%d", a.Z, a.X, a.Y)
}

package checkpoint

import (
	"context"
	"strconv"
	"time"

	"github.com/katkad/mongo-observer/errors"
	"github.com/katkad/mongo-observer/oplog"
	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Address  string `mapstructure:"address" json:"address" toml:"address" yaml:"address"`
	Username string `mapstructure:"username" json:"username" toml:"username" yaml:"username"`
	Password string `mapstructure:"password" json:"password" toml:"password" yaml:"password"`
	DB       int    `mapstructure:"db" json:"db" toml:"db" yaml:"db"`
	Key      string `mapstructure:"key" json:"key" toml:"key" yaml:"key"`
}

func (c *RedisConfig) ValidateAndSetDefault() error {
	if c.Address == "" {
		return errors.New("redis config address is empty")
	}
	if c.Key == "" {
		return errors.New("redis config key is empty")
	}
	return nil
}

// RedisStore keeps the checkpoint int64-packed under a single key, so the
// stored value sorts numerically and survives inspection with plain GET.
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if err := cfg.ValidateAndSetDefault(); err != nil {
		return nil, errors.Trace(err)
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	})
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, errors.Trace(err)
	}
	return &RedisStore{client: client, key: cfg.Key}, nil
}

func (s *RedisStore) Save(ctx context.Context, cp oplog.Checkpoint) error {
	return errors.Trace(s.client.Set(ctx, s.key, cp.Int64(), 0).Err())
}

func (s *RedisStore) Load(ctx context.Context) (oplog.Checkpoint, bool, error) {
	val, err := s.client.Get(ctx, s.key).Result()
	if err == redis.Nil {
		return oplog.Checkpoint{}, false, nil
	}
	if err != nil {
		return oplog.Checkpoint{}, false, errors.Trace(err)
	}
	packed, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return oplog.Checkpoint{}, false, errors.Annotatef(err, "corrupt checkpoint value[%s] key[%s]", val, s.key)
	}
	return oplog.CheckpointFromInt64(packed), true, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

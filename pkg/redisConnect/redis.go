package redisconnect

import (
	"context"
	"fmt"

	nrredis "github.com/newrelic/go-agent/v3/integrations/nrredis-v9"
	"github.com/redis/go-redis/v9"
)

// RedisConfig holds the Redis connection settings.
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	// Instrumented adds the New Relic hook to the client.
	Instrumented bool `yaml:"instrumented"`
}

// Options converts the config into go-redis options.
func (c RedisConfig) Options() *redis.Options {
	return &redis.Options{
		Addr:     fmt.Sprintf("%s:%s", c.Host, c.Port),
		Password: c.Password,
		DB:       c.DB,
	}
}

func ConnectRedis(ctx context.Context, config RedisConfig) (redisClient *redis.Client, err error) {
	opts := config.Options()
	redisClient = redis.NewClient(opts)
	if config.Instrumented {
		redisClient.AddHook(nrredis.NewHook(opts))
	}

	err = redisClient.Ping(ctx).Err()
	if err != nil {
		redisClient.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return
}

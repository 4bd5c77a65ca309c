package adapters

import (
	"crypto/tls"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	TLS      bool
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

var (
	redisClientMap = make(map[string]*redis.Client)
	redisClientMu  sync.Mutex
)

// GetRedisClient returns a shared client per address and database.
func GetRedisClient(cfg RedisConfig) *redis.Client {
	redisClientMu.Lock()
	defer redisClientMu.Unlock()

	key := fmt.Sprintf("%s/%d", cfg.Addr(), cfg.DB)
	redisClient := redisClientMap[key]

	if redisClient == nil {
		options := &redis.Options{
			Addr:     cfg.Addr(),
			Password: cfg.Password,
			DB:       cfg.DB,
		}

		if cfg.TLS {
			options.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}

		redisClient = redis.NewClient(options)
		redisClientMap[key] = redisClient
	}

	return redisClient
}

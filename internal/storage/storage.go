package storage

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"storefront/internal/config"
)

// Medium key-value носитель байтовых блобов. Load возвращает ok=false для отсутствующего ключа.
type Medium interface {
	Save(ctx context.Context, key string, data []byte) error
	Load(ctx context.Context, key string) ([]byte, bool, error)
	Close() error
}

// Open выбирает носитель по store.driver
func Open(ctx context.Context, cfg config.Store) (Medium, error) {
	switch cfg.Driver {
	case config.DriverMemory, "":
		return NewMemory(), nil
	case config.DriverFile:
		return NewFile(cfg.Dir)
	case config.DriverSQLite:
		return OpenSQLite(ctx, cfg.SQLitePath)
	case config.DriverRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis: ping %s: %w", cfg.RedisAddr, err)
		}
		return NewRedis(client, cfg.RedisTTL), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/goodtune/activityd/internal/config"
	"github.com/goodtune/activityd/internal/storage"
	"github.com/redis/go-redis/v9"
)

const pingTimeout = 5 * time.Second

// Store keeps usage records in Redis.
type Store struct {
	client *redis.Client
	usage  *usageStore
}

// Open connects to Redis and verifies the connection with a PING.
func Open(cfg config.RedisConfig) (*Store, error) {
	opts, err := clientOptions(cfg)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", opts.Addr, err)
	}

	return &Store{client: client, usage: newUsageStore(client)}, nil
}

// clientOptions translates the configuration into go-redis options. The host
// may already carry a port, in which case Port is left zero.
func clientOptions(cfg config.RedisConfig) (*redis.Options, error) {
	opts := &redis.Options{
		Addr:         cfg.Host,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	}
	if cfg.Port > 0 {
		opts.Addr = cfg.Host + ":" + strconv.Itoa(cfg.Port)
	}

	timeouts := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"dial_timeout", cfg.DialTimeout, &opts.DialTimeout},
		{"read_timeout", cfg.ReadTimeout, &opts.ReadTimeout},
		{"write_timeout", cfg.WriteTimeout, &opts.WriteTimeout},
	}
	for _, t := range timeouts {
		if t.value == "" {
			continue
		}
		d, err := time.ParseDuration(t.value)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", t.name, err)
		}
		*t.dst = d
	}

	return opts, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) Usage() storage.UsageStore {
	return s.usage
}

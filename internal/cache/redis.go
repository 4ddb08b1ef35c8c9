package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"vibration-monitor/internal/metrics"
)

// ErrNotFound ключ отсутствует в Redis
var ErrNotFound = errors.New("cache: key not found")

// RedisCache обертка для Redis клиента
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache создает клиент и проверяет подключение
func NewRedisCache(ctx context.Context, opts *redis.Options) (*RedisCache, error) {
	if opts.PoolSize == 0 {
		opts.PoolSize = 10
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	client := redis.NewClient(opts)

	// Проверяем подключение
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", opts.Addr, err)
	}

	return &RedisCache{client: client}, nil
}

// NewRedisCacheFromURL создает клиент по адресу redis://[:password@]host:port/db
func NewRedisCacheFromURL(ctx context.Context, url string) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return NewRedisCache(ctx, opts)
}

// GetBlob читает значение ключа целиком
func (r *RedisCache) GetBlob(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.RedisOperations.WithLabelValues("get_blob", "miss").Inc()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		metrics.RedisOperations.WithLabelValues("get_blob", "error").Inc()
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	metrics.RedisOperations.WithLabelValues("get_blob", "success").Inc()
	return data, nil
}

// PutBlob сохраняет значение; ttl == 0 означает без срока
func (r *RedisCache) PutBlob(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		metrics.RedisOperations.WithLabelValues("put_blob", "error").Inc()
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	metrics.RedisOperations.WithLabelValues("put_blob", "success").Inc()
	return nil
}

// Ping проверяет доступность Redis
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close закрывает соединение с Redis
func (r *RedisCache) Close() error {
	return r.client.Close()
}

// GetStats возвращает статистику пула соединений
func (r *RedisCache) GetStats() map[string]interface{} {
	stats := r.client.PoolStats()

	return map[string]interface{}{
		"hits":        stats.Hits,
		"misses":      stats.Misses,
		"timeouts":    stats.Timeouts,
		"total_conns": stats.TotalConns,
		"idle_conns":  stats.IdleConns,
		"stale_conns": stats.StaleConns,
	}
}

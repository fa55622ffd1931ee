package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/jmgilman/go/errors"
	"github.com/redis/go-redis/v9"
)

// RedisStore 把缓存条目放进 Redis，适合多台机器共享同一个 svn 服务器的场景
type RedisStore struct {
	client *redis.Client
}

type RedisConfig struct {
	RedisURL string // 标准连接字符串: redis://<user>:<password>@<host>:<port>/<db>
}

func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	// Fail-fast 连接检查
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// cacheKey 生成 Redis Key，添加前缀防止冲突
func (s *RedisStore) cacheKey(namespace, name string) string {
	return "rv:cache:" + safeNamespace(namespace) + ":" + entryID(name)
}

func (s *RedisStore) Location(namespace, name string) string {
	return s.cacheKey(namespace, name)
}

func (s *RedisStore) Load(ctx context.Context, namespace, name string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.cacheKey(namespace, name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Save 使用 Redis 原生过期，ttl 为 0 时永不过期
func (s *RedisStore) Save(ctx context.Context, namespace, name string, data []byte, ttl time.Duration) error {
	return s.client.Set(ctx, s.cacheKey(namespace, name), data, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, namespace, name string) error {
	return s.client.Del(ctx, s.cacheKey(namespace, name)).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

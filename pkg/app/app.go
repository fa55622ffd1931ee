// pkg/app/app.go
package app

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"revvault/pkg/cache"
	"revvault/pkg/connector"
	"revvault/pkg/logging"

	"github.com/spf13/viper"
)

// App 是整个应用程序的依赖容器 (Dependency Container)
// 它持有所有“单例”服务，版本库级别的对象由 OpenRepository 按需创建
type App struct {
	Logger    *slog.Logger
	Cache     *cache.Manager
	Connector *connector.Connector

	// 索引数据库与磁盘缓存的根目录
	StoragePath string

	cacheStore cache.Store
}

// NewApp 是工厂函数，负责组装这一台机器
// 它遵循 Viper 的配置，但不知道具体的 CLI 命令
func NewApp() (*App, error) {
	// 1. 存储根目录 (Single Source of Truth)
	storagePath := viper.GetString("storage.path")
	if storagePath == "" {
		return nil, fmt.Errorf("storage path not set")
	}

	logger := logging.New(os.Stderr, viper.GetBool("log.verbose"))

	// 2. 缓存层 (Dependency Injection)
	store, err := initCacheStore(storagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to init cache: %w", err)
	}
	manager := cache.NewManager(store,
		cache.WithLogger(logger),
		cache.WithEnabled(viper.GetBool("cache.enabled")),
	)

	// 3. svn 连接
	cfg, err := connectorConfig()
	if err != nil {
		return nil, err
	}
	conn := connector.New(cfg,
		connector.WithCacheManager(manager),
		connector.WithLogger(logger),
		connector.WithPrompter(connector.NewConsolePrompter(os.Stdin, os.Stderr)),
	)

	return &App{
		Logger:      logger,
		Cache:       manager,
		Connector:   conn,
		StoragePath: storagePath,
		cacheStore:  store,
	}, nil
}

// initCacheStore 按 cache.backend 选择缓存后端
func initCacheStore(storagePath string) (cache.Store, error) {
	switch backend := viper.GetString("cache.backend"); backend {
	case "", "disk":
		return cache.NewDiskStore(filepath.Join(storagePath, "cache"))
	case "redis":
		return cache.NewRedisStore(cache.RedisConfig{RedisURL: viper.GetString("cache.redis-url")})
	default:
		return nil, fmt.Errorf("unsupported cache backend: %s", backend)
	}
}

func connectorConfig() (connector.Config, error) {
	timeout, err := cache.ParseDuration(viper.GetString("repository-connector.timeout"))
	if err != nil {
		return connector.Config{}, fmt.Errorf("invalid repository-connector.timeout: %w", err)
	}
	lastRevisionTTL, err := cache.ParseDuration(viper.GetString("repository-connector.last-revision-cache-duration"))
	if err != nil {
		return connector.Config{}, fmt.Errorf("invalid repository-connector.last-revision-cache-duration: %w", err)
	}

	return connector.Config{
		Binary:                    viper.GetString("repository-connector.binary"),
		Username:                  viper.GetString("repository-connector.username"),
		Password:                  viper.GetString("repository-connector.password"),
		Timeout:                   timeout,
		LastRevisionCacheDuration: lastRevisionTTL,
	}, nil
}

// Close 释放缓存后端持有的连接 (Redis)
func (a *App) Close() error {
	if c, ok := a.cacheStore.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

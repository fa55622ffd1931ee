package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"revvault/pkg/core"
	"revvault/pkg/logging"

	"github.com/jmgilman/go/errors"
)

// entry 是落盘的缓存条目
// Payload 是调用方的值经过 cbor 编码后的字节，解码时再反序列化到调用方给的类型
type entry struct {
	Invalidator string `cbor:"i"`
	ExpiresAt   int64  `cbor:"e"` // Unix 纳秒，0 表示不过期
	Payload     []byte `cbor:"p"`
}

// Manager 是通用的结果缓存，键格式为 "namespace:name"
// 除了键格式错误外，缓存层从不向上报错：读失败一律视为未命中
type Manager struct {
	store   Store
	enabled bool
	logger  *slog.Logger
	now     func() time.Time
}

type Option func(*Manager)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithClock 替换时钟，测试 TTL 用
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithEnabled 关闭后 Get 恒为未命中，Set 什么都不做
func WithEnabled(enabled bool) Option {
	return func(m *Manager) { m.enabled = enabled }
}

func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		enabled: true,
		logger:  logging.Discard(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Set 写入缓存
// invalidator 为空表示不打标签；ttl 为 0 表示永不过期
func (m *Manager) Set(ctx context.Context, key string, value any, invalidator string, ttl time.Duration) error {
	namespace, name, err := splitKey(key)
	if err != nil {
		return err
	}
	if !m.enabled {
		return nil
	}

	payload, err := core.Encode(value)
	if err != nil {
		m.logger.Warn("cache value not encodable", slog.String("key", key), slog.String("err", err.Error()))
		return nil
	}

	e := entry{Invalidator: invalidator, Payload: payload}
	if ttl > 0 {
		e.ExpiresAt = m.now().Add(ttl).UnixNano()
	}

	data, err := core.Encode(e)
	if err != nil {
		return nil
	}

	if err := m.store.Save(ctx, namespace, name, data, ttl); err != nil {
		// 写缓存失败不影响主流程
		m.logger.Warn("cache write failed", slog.String("location", m.store.Location(namespace, name)), slog.String("err", err.Error()))
	}
	return nil
}

// Get 读取缓存并解码到 out
// 以下情况都是未命中: 条目不存在、已过期、invalidator 不一致、条目损坏
// 后三种情况会顺手删除条目，避免死文件堆积
func (m *Manager) Get(ctx context.Context, key, invalidator string, out any) (bool, error) {
	namespace, name, err := splitKey(key)
	if err != nil {
		return false, err
	}
	if !m.enabled {
		return false, nil
	}

	location := m.store.Location(namespace, name)

	data, err := m.store.Load(ctx, namespace, name)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			m.logger.Warn("cache read failed", slog.String("location", location), slog.String("err", err.Error()))
		}
		m.trace(ctx, location, "miss")
		return false, nil
	}

	var e entry
	stale := core.Decode(data, &e) != nil ||
		(invalidator != "" && e.Invalidator != invalidator) ||
		(e.ExpiresAt != 0 && !m.now().Before(time.Unix(0, e.ExpiresAt)))

	if !stale && core.Decode(e.Payload, out) != nil {
		stale = true
	}

	if stale {
		if err := m.store.Delete(ctx, namespace, name); err != nil {
			m.logger.Warn("cache evict failed", slog.String("location", location), slog.String("err", err.Error()))
		}
		m.trace(ctx, location, "miss")
		return false, nil
	}

	m.trace(ctx, location, "hit: "+fmtSize(int64(len(data))))
	return true, nil
}

// Delete 主动失效
func (m *Manager) Delete(ctx context.Context, key string) error {
	namespace, name, err := splitKey(key)
	if err != nil {
		return err
	}
	if err := m.store.Delete(ctx, namespace, name); err != nil {
		m.logger.Warn("cache evict failed", slog.String("key", key), slog.String("err", err.Error()))
	}
	return nil
}

func (m *Manager) trace(ctx context.Context, location, result string) {
	m.logger.LogAttrs(ctx, slog.LevelDebug, "[cache]",
		slog.String("location", location),
		slog.String("result", result),
	)
}

func splitKey(key string) (string, string, error) {
	namespace, name, ok := strings.Cut(key, ":")
	if !ok || namespace == "" || name == "" {
		return "", "", errors.New(errors.CodeInvalidInput, `The key must be in "namespace:name" format.`)
	}
	return namespace, name, nil
}

func fmtSize(s int64) string {
	if s < 1024 {
		return fmt.Sprintf("%dB", s)
	} else if s < 1024*1024 {
		return fmt.Sprintf("%.1fKB", float64(s)/1024)
	}
	return fmt.Sprintf("%.2fMB", float64(s)/1024/1024)
}

package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/jmgilman/go/errors"
)

var (
	ErrNotFound = errors.New(errors.CodeNotFound, "cache entry not found")
)

// Store 定义缓存条目的持久化后端
// 实现可以是本地磁盘 (默认) 或 Redis
type Store interface {
	// Load 读取原始条目，不存在时返回 ErrNotFound
	Load(ctx context.Context, namespace, name string) ([]byte, error)

	// Save 覆盖写入条目。ttl 为 0 表示不过期，后端可以据此做原生过期
	Save(ctx context.Context, namespace, name string, data []byte, ttl time.Duration) error

	// Delete 删除条目，条目不存在不算错误
	Delete(ctx context.Context, namespace, name string) error

	// Location 返回条目的物理位置，只用于诊断输出
	Location(namespace, name string) string
}

// entryID 把任意长度的条目名压缩成定长的文件名/键名片段
func entryID(name string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(name))
}

// safeNamespace 命名空间会出现在文件名里，非安全字符一律替换
func safeNamespace(namespace string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		}
		return '-'
	}, namespace)
}

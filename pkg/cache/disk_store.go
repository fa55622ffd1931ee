package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DiskStore 每个条目一个文件: <root>/<namespace>_<hash>.cache
type DiskStore struct {
	rootPath string // 比如: /home/user/.revvault/cache
}

// NewDiskStore 创建磁盘缓存后端
func NewDiskStore(root string) (*DiskStore, error) {
	// 确保根目录存在
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}
	return &DiskStore{rootPath: root}, nil
}

func (s *DiskStore) Location(namespace, name string) string {
	return filepath.Join(s.rootPath, safeNamespace(namespace)+"_"+entryID(name)+".cache")
}

func (s *DiskStore) Load(ctx context.Context, namespace, name string) ([]byte, error) {
	data, err := os.ReadFile(s.Location(namespace, name))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Save 过期时间记录在条目内部，文件系统不支持原生 TTL，ttl 参数在这里无用
func (s *DiskStore) Save(ctx context.Context, namespace, name string, data []byte, ttl time.Duration) error {
	targetPath := s.Location(namespace, name)

	// 1. 原子写入 (Atomic Write)
	// 先写到临时文件再 Rename，读者要么看到旧文件，要么看到完整的新文件
	tempFile, err := os.CreateTemp(s.rootPath, "temp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tempFile.Name())

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return err
	}
	if err := tempFile.Close(); err != nil {
		return err
	}

	// 2. 移动到最终位置
	return os.Rename(tempFile.Name(), targetPath)
}

func (s *DiskStore) Delete(ctx context.Context, namespace, name string) error {
	err := os.Remove(s.Location(namespace, name))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

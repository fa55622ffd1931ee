package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"revvault/pkg/types"

	"github.com/fxamacker/cbor/v2"
)

// 缓存条目的编码选项
var encOptions = cbor.EncOptions{
	// 1. 强制 Map Key 排序 (Canonical)
	// 相同的值总是得到相同的字节，缓存文件可以直接比较
	Sort: cbor.SortCanonical,

	// 2. 时间格式化为 Unix 整数
	Time:    cbor.TimeUnix,
	TimeTag: cbor.EncTagNone,

	// 3. 禁止不定长编码
	IndefLength: cbor.IndefLengthForbidden,
}

// 全局复用的编码模式
var em, _ = encOptions.EncMode()

var decOptions = cbor.DecOptions{
	// --- 安全性配置 ---
	// 缓存文件来自磁盘/Redis，可能被截断或篡改，限制容器大小防止耗尽内存
	MaxArrayElements: 1 << 20,
	MaxMapPairs:      1 << 20,
	MaxNestedLevels:  64,

	IndefLength: cbor.IndefLengthForbidden,
	DupMapKey:   cbor.DupMapKeyEnforcedAPF,
	TimeTag:     cbor.DecTagIgnored,
}

var dm, _ = decOptions.DecMode()

// Encode 以规范形式序列化任意值
func Encode(v any) ([]byte, error) {
	data, err := em.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value: %w", err)
	}
	return data, nil
}

// Decode 通用的解码函数
func Decode(data []byte, v any) error {
	return dm.Unmarshal(data, v)
}

// NormalizePath 目录带结尾分隔符，文件不带
// 这样 "lib" 文件与 "lib/" 目录是两条不同的记录
func NormalizePath(path string, kind types.PathKind) string {
	if kind == types.KindDir && !strings.HasSuffix(path, "/") {
		return path + "/"
	}
	return path
}

// PathChecksum 计算规范化路径的身份 Hash
func PathChecksum(normalized string) types.Hash {
	sum := sha256.Sum256([]byte(normalized))
	return types.Hash(hex.EncodeToString(sum[:]))
}

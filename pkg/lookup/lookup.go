// pkg/lookup/lookup.go
package lookup

import (
	"sync"
)

// FetchFunc 在缓存未命中时回源查询
// found=false 表示数据库里确实没有这一行，这个结论同样会被缓存
type FetchFunc[V any] func() (value V, found bool, err error)

type entry[V any] struct {
	value V
	found bool
}

// Table 是一张表的行缓存 (一次索引运行内有效)
// 只是性能层: 清空它不会改变任何查询结果
type Table[V any] struct {
	name    string
	entries map[string]entry[V]
	mu      sync.RWMutex
}

// NewTable 创建一张空的行缓存，name 只用于诊断
func NewTable[V any](name string) *Table[V] {
	return &Table[V]{
		name:    name,
		entries: make(map[string]entry[V]),
	}
}

func (t *Table[V]) Name() string { return t.name }

// Get 先查缓存 (包括缓存下来的 "不存在")，未命中时调用 fetch 并缓存结果
// fetch 为 nil 时等价于 Lookup
func (t *Table[V]) Get(key string, fetch FetchFunc[V]) (V, bool, error) {
	if e, ok := t.peek(key); ok {
		return e.value, e.found, nil
	}

	var zero V
	if fetch == nil {
		return zero, false, nil
	}

	value, found, err := fetch()
	if err != nil {
		// 查询失败不缓存，下次重新回源
		return zero, false, err
	}

	t.mu.Lock()
	t.entries[key] = entry[V]{value: value, found: found}
	t.mu.Unlock()

	return value, found, nil
}

// Lookup 只读缓存，不回源
// 缓存中记录为 "不存在" 的 key 同样返回 false
func (t *Table[V]) Lookup(key string) (V, bool) {
	e, _ := t.peek(key)
	return e.value, e.found
}

// Set 覆盖或插入一行
func (t *Table[V]) Set(key string, value V) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[key] = entry[V]{value: value, found: true}
}

// Update 只修改已经缓存的行，返回是否修改
func (t *Table[V]) Update(key string, fn func(*V)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[key]
	if !ok || !e.found {
		return false
	}
	fn(&e.value)
	t.entries[key] = e
	return true
}

// Clear 丢弃全部缓存，释放内存
func (t *Table[V]) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[string]entry[V])
}

func (t *Table[V]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

func (t *Table[V]) peek(key string) (entry[V], bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[key]
	return e, ok
}

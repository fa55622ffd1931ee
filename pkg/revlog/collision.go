package revlog

import "strings"

// CollisionDetector 保证项目根路径互不嵌套
// 候选根与已知根相同视为同一个项目，不算冲突
type CollisionDetector struct {
	roots map[string]struct{}
}

func NewCollisionDetector() *CollisionDetector {
	return &CollisionDetector{roots: make(map[string]struct{})}
}

// AddPaths 注册一批项目根
func (d *CollisionDetector) AddPaths(roots ...string) {
	for _, root := range roots {
		d.roots[root] = struct{}{}
	}
}

// IsCollision 候选根包含或被包含于任一已知根
func (d *CollisionDetector) IsCollision(candidate string) bool {
	if _, ok := d.roots[candidate]; ok {
		return false
	}
	for root := range d.roots {
		if strings.HasPrefix(candidate, root) || strings.HasPrefix(root, candidate) {
			return true
		}
	}
	return false
}

// Reset 清空，下次运行前重新从数据库装载
func (d *CollisionDetector) Reset() {
	d.roots = make(map[string]struct{})
}

func (d *CollisionDetector) Len() int { return len(d.roots) }

package refs

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultLayout 标准的 SVN 目录布局: 单层 trunk，其余为 "<容器>/<名称>"
var DefaultLayout = Layout{
	Trunk:      []string{"trunk"},
	Containers: []string{"branches", "tags", "releases"},
}

// Layout 描述哪些目录名构成一个引用 (Ref)
type Layout struct {
	Trunk      []string // 自身即引用，例如 "trunk"
	Containers []string // 下一级目录才是引用，例如 "branches/feature"
}

// Resolver 负责从路径中识别引用与项目根
type Resolver struct {
	pattern *regexp.Regexp
}

// NewResolver 按布局编译匹配规则
func NewResolver(layout Layout) (*Resolver, error) {
	var alternatives []string
	for _, name := range layout.Trunk {
		alternatives = append(alternatives, regexp.QuoteMeta(name))
	}
	for _, name := range layout.Containers {
		alternatives = append(alternatives, regexp.QuoteMeta(name)+"/[^/]+")
	}
	if len(alternatives) == 0 {
		return nil, fmt.Errorf("ref layout is empty")
	}

	// 非贪婪前缀: 取路径中第一个出现的引用
	expr := `^(.*?/)(` + strings.Join(alternatives, "|") + `)(/|$)`
	pattern, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid ref layout: %w", err)
	}

	return &Resolver{pattern: pattern}, nil
}

// RefByPath "/proj/branches/x/lib/" -> ("branches/x", "/proj/", true)
// 不属于任何引用的路径返回 ok=false
func (r *Resolver) RefByPath(path string) (ref, root string, ok bool) {
	m := r.pattern.FindStringSubmatch(path)
	if m == nil {
		return "", "", false
	}
	return m[2], m[1], true
}

var defaultResolver, _ = NewResolver(DefaultLayout)

// RefByPath 使用默认布局识别引用
func RefByPath(path string) (ref, root string, ok bool) {
	return defaultResolver.RefByPath(path)
}

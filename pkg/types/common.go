// pkg/types/common.go
package types

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Hash 代表路径的唯一标识符 (SHA256 Hex String)
// 这是一个“值对象”，应当是不可变的。
type Hash string

func (h Hash) String() string { return string(h) }

// 验证 Hash 合法性
func (h Hash) IsZero() bool  { return h == "" }
func (h Hash) IsValid() bool { return len(h) == 64 } // 简单的长度检查

// Revision 是 SVN 的全局版本号，由服务端分配，单调递增
type Revision int64

func (r Revision) String() string { return strconv.FormatInt(int64(r), 10) }

// PathKind 对应 svn log 中 <path kind="..."> 的取值
type PathKind string

const (
	KindFile PathKind = "file"
	KindDir  PathKind = "dir"
)

// ParsePathKind 严格校验：未知取值说明上游输出被破坏，直接报错
func ParsePathKind(s string) (PathKind, error) {
	switch k := PathKind(s); k {
	case KindFile, KindDir:
		return k, nil
	}
	return "", fmt.Errorf("unknown path kind %q", s)
}

// Action 对应 <path action="...">
type Action string

const (
	ActionAdd     Action = "A"
	ActionModify  Action = "M"
	ActionDelete  Action = "D"
	ActionReplace Action = "R"
)

func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionAdd, ActionModify, ActionDelete, ActionReplace:
		return a, nil
	}
	return "", fmt.Errorf("unknown path action %q", s)
}

// ExpandRevisionRanges 把 "5, 10-12" 这样的列表展开为 [5 10 11 12]
// 结果去重并升序
func ExpandRevisionRanges(items []string) ([]Revision, error) {
	seen := make(map[Revision]struct{})

	for _, item := range items {
		for _, token := range strings.Split(item, ",") {
			token = strings.TrimSpace(token)
			if token == "" {
				continue
			}

			from, to, isRange := strings.Cut(token, "-")
			if !isRange {
				to = from
			}

			start, err := parseRevision(from)
			if err != nil {
				return nil, err
			}
			end, err := parseRevision(to)
			if err != nil {
				return nil, err
			}
			if start > end {
				start, end = end, start
			}

			for r := start; r <= end; r++ {
				seen[r] = struct{}{}
			}
		}
	}

	result := make([]Revision, 0, len(seen))
	for r := range seen {
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result, nil
}

func parseRevision(s string) (Revision, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid revision %q", s)
	}
	return Revision(n), nil
}

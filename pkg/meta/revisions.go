package meta

import (
	"sort"

	"revvault/pkg/types"
)

// SortedRevisions 把集合转为升序切片
func SortedRevisions(set map[types.Revision]struct{}) []types.Revision {
	result := make([]types.Revision, 0, len(set))
	for r := range set {
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

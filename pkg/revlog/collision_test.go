package revlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollisionDetector(t *testing.T) {
	d := NewCollisionDetector()
	assert.False(t, d.IsCollision("/a/"), "空检测器不会冲突")

	d.AddPaths("/a/", "/x/y/")

	tests := []struct {
		candidate string
		want      bool
		reason    string
	}{
		{candidate: "/a/", want: false, reason: "同一个项目"},
		{candidate: "/a/b/", want: true, reason: "嵌套在已知项目内"},
		{candidate: "/x/", want: true, reason: "包含已知项目"},
		{candidate: "/ab/", want: false, reason: "仅字符串前缀相似"},
		{candidate: "/x/yz/", want: false, reason: "兄弟目录"},
		{candidate: "/other/", want: false, reason: "无关"},
		{candidate: "/", want: true, reason: "根包含一切"},
	}

	for _, tt := range tests {
		t.Run(tt.candidate, func(t *testing.T) {
			assert.Equal(t, tt.want, d.IsCollision(tt.candidate), tt.reason)
		})
	}

	assert.Equal(t, 2, d.Len())
	d.Reset()
	assert.Equal(t, 0, d.Len())
	assert.False(t, d.IsCollision("/a/b/"))
}

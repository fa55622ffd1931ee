package revlog

import (
	"testing"
	"time"

	"revvault/pkg/types"

	"github.com/jmgilman/go/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleLog = `<?xml version="1.0" encoding="UTF-8"?>
<log>
<logentry revision="20">
<author>alex</author>
<date>2024-03-01T12:30:00.123456Z</date>
<paths>
<path kind="dir" action="A" copyfrom-path="/proj/trunk" copyfrom-rev="19">/proj/branches/x</path>
<path kind="file" action="M" text-mods="true" prop-mods="false">/proj/branches/x/a.txt</path>
</paths>
<msg>Fixes #12</msg>
<logentry revision="15">
<author>bob</author>
<date>2024-02-01T00:00:00.000000Z</date>
<msg>merged change</msg>
</logentry>
</logentry>
<logentry revision="21">
<author>alex</author>
<date>2024-03-02T00:00:00.000000Z</date>
<msg></msg>
</logentry>
</log>`

func TestParseLog(t *testing.T) {
	entries, err := ParseLog([]byte(sampleLog))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	first := entries[0]
	assert.Equal(t, types.Revision(20), first.Revision)
	assert.Equal(t, "alex", first.Author)
	assert.Equal(t, "Fixes #12", first.Message)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 30, 0, 123456000, time.UTC), first.Date)

	require.Len(t, first.Paths, 2)
	assert.Equal(t, ChangedPath{
		Path:             "/proj/branches/x",
		Kind:             types.KindDir,
		Action:           types.ActionAdd,
		CopyFromPath:     "/proj/trunk",
		CopyFromRevision: 19,
	}, first.Paths[0])
	assert.True(t, first.Paths[0].HasCopySource())
	assert.False(t, first.Paths[1].HasCopySource())

	// 嵌套的 logentry 是被合并的版本
	require.Len(t, first.Merged, 1)
	assert.Equal(t, types.Revision(15), first.Merged[0].Revision)
	assert.Equal(t, "bob", first.Merged[0].Author)

	// 没有 <paths> 的空提交
	assert.Equal(t, types.Revision(21), entries[1].Revision)
	assert.Empty(t, entries[1].Paths)
	assert.Empty(t, entries[1].Merged)
}

func TestParseLog_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "Broken XML", data: `<log><logentry revision="1">`},
		{name: "Unknown Kind", data: `<log><logentry revision="1"><paths><path kind="link" action="A">/a</path></paths></logentry></log>`},
		{name: "Unknown Action", data: `<log><logentry revision="1"><paths><path kind="file" action="X">/a</path></paths></logentry></log>`},
		{name: "Bad Revision", data: `<log><logentry revision="abc"></logentry></log>`},
		{name: "Bad Copy Revision", data: `<log><logentry revision="2"><paths><path kind="file" action="A" copyfrom-path="/b" copyfrom-rev="">/a</path></paths></logentry></log>`},
		{name: "Bad Date", data: `<log><logentry revision="1"><date>yesterday</date></logentry></log>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLog([]byte(tt.data))
			require.Error(t, err)
			assert.Equal(t, errors.CodeSchemaFailed, errors.GetCode(err))
		})
	}
}

func TestParseLog_Empty(t *testing.T) {
	entries, err := ParseLog([]byte(`<?xml version="1.0"?><log></log>`))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

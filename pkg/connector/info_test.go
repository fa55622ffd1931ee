package connector

import (
	"context"
	"testing"
	"time"

	"revvault/pkg/cache"
	"revvault/pkg/types"

	jerrors "github.com/jmgilman/go/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const infoOutput = `<?xml version="1.0" encoding="UTF-8"?>
<info>
<entry kind="dir" path="/path/to/working-copy" revision="100">
<url>svn://repository.com/path/to/project/trunk</url>
<relative-url>^/path/to/project/trunk</relative-url>
<repository>
<root>svn://repository.com</root>
<uuid>f4d2b6bd-2b5b-4c3e-a4f3-8e9ad3f4ab13</uuid>
</repository>
<commit revision="95">
<author>alex</author>
<date>2015-11-04T16:20:28.991340Z</date>
</commit>
</entry>
</info>`

func TestGetInfo_Parse(t *testing.T) {
	runner := &fakeRunner{responses: []fakeResponse{{out: infoOutput}}}
	c := newTestConnector(t, Config{}, runner, &fakePrompter{})

	info, err := c.GetInfo(context.Background(), "/path/to/working-copy")
	require.NoError(t, err)

	assert.Equal(t, "dir", info.Kind)
	assert.Equal(t, "svn://repository.com/path/to/project/trunk", info.URL)
	assert.Equal(t, "svn://repository.com", info.RepositoryRoot)
	assert.Equal(t, types.Revision(100), info.Revision)
	assert.Equal(t, types.Revision(95), info.LastChangedRevision)
	assert.Equal(t, []string{"svn --non-interactive info --xml '/path/to/working-copy'"}, runner.calls)
}

func TestGetWorkingCopyURL(t *testing.T) {
	runner := &fakeRunner{responses: []fakeResponse{{out: infoOutput}}}
	c := newTestConnector(t, Config{}, runner, &fakePrompter{})

	// URL 原样返回，不执行命令
	url, err := c.GetWorkingCopyURL(context.Background(), "svn://repository.com/path")
	require.NoError(t, err)
	assert.Equal(t, "svn://repository.com/path", url)
	assert.Empty(t, runner.calls)

	url, err = c.GetWorkingCopyURL(context.Background(), "/path/to/working-copy")
	require.NoError(t, err)
	assert.Equal(t, "svn://repository.com/path/to/project/trunk", url)
}

func TestGetInfo_NoEntries(t *testing.T) {
	runner := &fakeRunner{responses: []fakeResponse{{out: `<?xml version="1.0"?><info></info>`}}}
	c := newTestConnector(t, Config{}, runner, &fakePrompter{})

	_, err := c.GetInfo(context.Background(), "/wc")
	require.Error(t, err)
	assert.Equal(t, jerrors.CodeNotFound, jerrors.GetCode(err))
	assert.Contains(t, err.Error(), `The directory "/wc" not found in "svn info" command results.`)
}

func TestGetInfo_Malformed(t *testing.T) {
	runner := &fakeRunner{responses: []fakeResponse{{out: `<info><entry`}}}
	c := newTestConnector(t, Config{}, runner, &fakePrompter{})

	_, err := c.GetInfo(context.Background(), "/wc")
	assert.Equal(t, jerrors.CodeSchemaFailed, jerrors.GetCode(err))
}

func TestHeadRevision_CachedForURLs(t *testing.T) {
	store, err := cache.NewDiskStore(t.TempDir())
	require.NoError(t, err)
	m := cache.NewManager(store)

	runner := &fakeRunner{responses: []fakeResponse{{out: infoOutput}, {out: infoOutput}, {out: infoOutput}}}
	c := newTestConnector(t, Config{LastRevisionCacheDuration: 10 * time.Minute}, runner, &fakePrompter{}, WithCacheManager(m))
	ctx := context.Background()

	// 1. 远程 URL: 第二次命中缓存
	for range 2 {
		rev, err := c.HeadRevision(ctx, "svn://repository.com")
		require.NoError(t, err)
		assert.Equal(t, types.Revision(95), rev)
	}
	assert.Len(t, runner.calls, 1)

	// 2. 工作副本路径从不缓存
	for range 2 {
		_, err := c.HeadRevision(ctx, "/path/to/working-copy")
		require.NoError(t, err)
	}
	assert.Len(t, runner.calls, 3)
}

func TestLog_CommandLine(t *testing.T) {
	runner := &fakeRunner{responses: []fakeResponse{{out: "<log/>"}}}
	c := newTestConnector(t, Config{}, runner, &fakePrompter{})

	out, err := c.Log(context.Background(), "svn://repository.com", 1, 1000, []string{"--verbose", "--use-merge-history"})
	require.NoError(t, err)
	assert.Equal(t, "<log/>", string(out))
	assert.Equal(t, []string{"svn --non-interactive log -r 1:1000 --xml --verbose --use-merge-history 'svn://repository.com'"}, runner.calls)
}

func TestGetProperty(t *testing.T) {
	runner := &fakeRunner{responses: []fakeResponse{{out: "OK"}}}
	c := newTestConnector(t, Config{}, runner, &fakePrompter{})

	out, err := c.GetProperty(context.Background(), "prop-name", "the/path", 5)
	require.NoError(t, err)
	assert.Equal(t, "OK", out)
	assert.Equal(t, []string{"svn --non-interactive propget prop-name 'the/path' --revision 5"}, runner.calls)
}

func TestUpdate_CommandLine(t *testing.T) {
	runner := &fakeRunner{}
	c := newTestConnector(t, Config{}, runner, &fakePrompter{})

	require.NoError(t, c.Update(context.Background(), "/wc", 0, false, nil))
	require.NoError(t, c.Update(context.Background(), "/wc", 7, true, nil))

	assert.Equal(t, []string{
		"svn --non-interactive update '/wc'",
		"svn --non-interactive update '/wc' --revision 7 --ignore-externals",
	}, runner.liveCalls)
}

func TestGetPathFromURL(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr string
	}{
		{input: "svn://repository.com/path/to/project", want: "/path/to/project"},
		{input: "file:///var/svn/repo/trunk", want: "/var/svn/repo/trunk"},
		{input: "svn://repository.com", want: ""},
		{input: "/path/to/folder", wantErr: `The "/path/to/folder" is not an URL.`},
		{input: "svn://", wantErr: `The URL "svn://" is malformed.`},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := GetPathFromURL(tt.input)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

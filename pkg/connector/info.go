package connector

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"strings"

	"revvault/pkg/types"

	"github.com/jmgilman/go/errors"
)

// Info 是 "svn info --xml" 中单个 entry 的投影
type Info struct {
	Kind                string
	Path                string
	URL                 string
	RepositoryRoot      string
	RepositoryUUID      string
	Revision            types.Revision
	LastChangedRevision types.Revision
}

type infoXML struct {
	Entries []struct {
		Kind       string `xml:"kind,attr"`
		Path       string `xml:"path,attr"`
		Revision   int64  `xml:"revision,attr"`
		URL        string `xml:"url"`
		Repository struct {
			Root string `xml:"root"`
			UUID string `xml:"uuid"`
		} `xml:"repository"`
		Commit struct {
			Revision int64 `xml:"revision,attr"`
		} `xml:"commit"`
	} `xml:"entry"`
}

// GetInfo 执行 "svn info --xml"
// 对远程 URL 的结果按 LastRevisionCacheDuration 缓存，工作副本从不缓存
func (c *Connector) GetInfo(ctx context.Context, pathOrURL string) (*Info, error) {
	cmd, err := c.GetCommand("info", "--xml {"+pathOrURL+"}")
	if err != nil {
		return nil, err
	}
	if IsURL(pathOrURL) && c.cfg.LastRevisionCacheDuration > 0 {
		cmd.WithCache(c.cfg.LastRevisionCacheDuration, "")
	}

	out, err := cmd.Run(ctx)
	if err != nil {
		return nil, err
	}

	var parsed infoXML
	if err := xml.Unmarshal([]byte(out), &parsed); err != nil {
		return nil, errors.Wrap(err, errors.CodeSchemaFailed, `malformed "svn info" output`)
	}
	if len(parsed.Entries) == 0 {
		return nil, errors.Newf(errors.CodeNotFound, "The directory %q not found in \"svn info\" command results.", pathOrURL)
	}

	e := parsed.Entries[0]
	return &Info{
		Kind:                e.Kind,
		Path:                e.Path,
		URL:                 e.URL,
		RepositoryRoot:      e.Repository.Root,
		RepositoryUUID:      e.Repository.UUID,
		Revision:            types.Revision(e.Revision),
		LastChangedRevision: types.Revision(e.Commit.Revision),
	}, nil
}

// GetWorkingCopyURL URL 原样返回，工作副本路径通过 svn info 解析
func (c *Connector) GetWorkingCopyURL(ctx context.Context, pathOrURL string) (string, error) {
	if IsURL(pathOrURL) {
		return pathOrURL, nil
	}
	info, err := c.GetInfo(ctx, pathOrURL)
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

// GetRepositoryRoot 返回版本库根 URL
func (c *Connector) GetRepositoryRoot(ctx context.Context, pathOrURL string) (string, error) {
	info, err := c.GetInfo(ctx, pathOrURL)
	if err != nil {
		return "", err
	}
	return info.RepositoryRoot, nil
}

// HeadRevision 返回 URL 的最后修改版本，对版本库根 URL 即 HEAD
func (c *Connector) HeadRevision(ctx context.Context, repositoryURL string) (types.Revision, error) {
	info, err := c.GetInfo(ctx, repositoryURL)
	if err != nil {
		return 0, err
	}
	return info.LastChangedRevision, nil
}

// Log 取 [from, to] 范围的 XML 日志
func (c *Connector) Log(ctx context.Context, repositoryURL string, from, to types.Revision, flags []string) ([]byte, error) {
	params := fmt.Sprintf("-r %d:%d --xml", from, to)
	if len(flags) > 0 {
		params += " " + strings.Join(flags, " ")
	}

	cmd, err := c.GetCommand("log", params+" {"+repositoryURL+"}")
	if err != nil {
		return nil, err
	}

	out, err := cmd.Run(ctx)
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}

// GetProperty 读取版本化属性
func (c *Connector) GetProperty(ctx context.Context, name, pathOrURL string, revision types.Revision) (string, error) {
	cmd, err := c.GetCommand("propget", fmt.Sprintf("%s {%s} --revision %d", name, pathOrURL, revision))
	if err != nil {
		return "", err
	}
	return cmd.Run(ctx)
}

// Update 更新工作副本，revision 为 0 表示 HEAD
func (c *Connector) Update(ctx context.Context, wcPath string, revision types.Revision, ignoreExternals bool, w io.Writer) error {
	params := "{" + wcPath + "}"
	if revision > 0 {
		params += fmt.Sprintf(" --revision %d", revision)
	}
	if ignoreExternals {
		params += " --ignore-externals"
	}

	cmd, err := c.GetCommand("update", params)
	if err != nil {
		return err
	}
	return cmd.RunLive(ctx, w)
}

// Revert 递归撤销工作副本的本地修改
func (c *Connector) Revert(ctx context.Context, wcPath string, w io.Writer) error {
	cmd, err := c.GetCommand("revert", "--depth infinity {"+wcPath+"}")
	if err != nil {
		return err
	}
	return cmd.RunLive(ctx, w)
}

// GetPathFromURL 返回 URL 的路径部分
func GetPathFromURL(rawURL string) (string, error) {
	if !IsURL(rawURL) {
		return "", errors.Newf(errors.CodeInvalidInput, "The %q is not an URL.", rawURL)
	}

	u, err := url.Parse(rawURL)
	if err != nil || (u.Host == "" && u.Path == "") {
		return "", errors.Newf(errors.CodeInvalidInput, "The URL %q is malformed.", rawURL)
	}
	return u.Path, nil
}

package revlog

import (
	"encoding/xml"
	"strconv"
	"strings"
	"time"

	"revvault/pkg/types"

	"github.com/jmgilman/go/errors"
)

// ChangedPath 是日志条目中的一条 <path>
type ChangedPath struct {
	Path             string
	Kind             types.PathKind
	Action           types.Action
	CopyFromPath     string         // 为空表示没有复制来源
	CopyFromRevision types.Revision // 仅当 CopyFromPath 非空时有意义
}

// HasCopySource 是否由复制产生
func (p ChangedPath) HasCopySource() bool { return p.CopyFromPath != "" }

// LogEntry 是单个版本的结构化日志
type LogEntry struct {
	Revision types.Revision
	Author   string
	Date     time.Time
	Message  string
	Paths    []ChangedPath

	// Merged 来自 --use-merge-history: 本次合并带进来的版本
	Merged []LogEntry
}

type logXML struct {
	Entries []logEntryXML `xml:"logentry"`
}

type logEntryXML struct {
	Revision string `xml:"revision,attr"`
	Author   string `xml:"author"`
	Date     string `xml:"date"`
	Message  string `xml:"msg"`
	Paths    struct {
		Items []pathXML `xml:"path"`
	} `xml:"paths"`
	Merged []logEntryXML `xml:"logentry"`
}

type pathXML struct {
	Kind         string `xml:"kind,attr"`
	Action       string `xml:"action,attr"`
	CopyFromPath string `xml:"copyfrom-path,attr"`
	CopyFromRev  string `xml:"copyfrom-rev,attr"`
	Value        string `xml:",chardata"`
}

// ParseLog 解析 "svn log --xml" 的输出
// 上游输出被认为是权威的: 任何无法识别的内容都是致命错误
func ParseLog(data []byte) ([]LogEntry, error) {
	var parsed logXML
	if err := xml.Unmarshal(data, &parsed); err != nil {
		return nil, errors.Wrap(err, errors.CodeSchemaFailed, "malformed revision log")
	}

	entries := make([]LogEntry, 0, len(parsed.Entries))
	for _, raw := range parsed.Entries {
		entry, err := raw.toEntry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (raw logEntryXML) toEntry() (LogEntry, error) {
	revision, err := parseRevisionAttr(raw.Revision)
	if err != nil {
		return LogEntry{}, err
	}

	entry := LogEntry{
		Revision: revision,
		Author:   raw.Author,
		Message:  raw.Message,
	}

	if raw.Date != "" {
		entry.Date, err = time.Parse(time.RFC3339Nano, raw.Date)
		if err != nil {
			return LogEntry{}, errors.Wrapf(err, errors.CodeSchemaFailed, "revision %d has malformed date", revision)
		}
	}

	for _, p := range raw.Paths.Items {
		changed, err := p.toChangedPath(revision)
		if err != nil {
			return LogEntry{}, err
		}
		entry.Paths = append(entry.Paths, changed)
	}

	for _, m := range raw.Merged {
		merged, err := m.toEntry()
		if err != nil {
			return LogEntry{}, err
		}
		entry.Merged = append(entry.Merged, merged)
	}

	return entry, nil
}

func (p pathXML) toChangedPath(revision types.Revision) (ChangedPath, error) {
	kind, err := types.ParsePathKind(p.Kind)
	if err != nil {
		return ChangedPath{}, errors.Wrapf(err, errors.CodeSchemaFailed, "revision %d", revision)
	}
	action, err := types.ParseAction(p.Action)
	if err != nil {
		return ChangedPath{}, errors.Wrapf(err, errors.CodeSchemaFailed, "revision %d", revision)
	}

	changed := ChangedPath{
		Path:   strings.TrimSpace(p.Value),
		Kind:   kind,
		Action: action,
	}

	if p.CopyFromPath != "" {
		changed.CopyFromPath = p.CopyFromPath
		changed.CopyFromRevision, err = parseRevisionAttr(p.CopyFromRev)
		if err != nil {
			return ChangedPath{}, err
		}
	}

	return changed, nil
}

func parseRevisionAttr(s string) (types.Revision, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, errors.Newf(errors.CodeSchemaFailed, "malformed revision number %q", s)
	}
	return types.Revision(n), nil
}

package revlog

import (
	"context"
	"maps"
	"slices"
	"strings"

	"revvault/pkg/meta"
	"revvault/pkg/types"

	"github.com/jmgilman/go/errors"
	"gorm.io/gorm"
)

// svn log 的附加参数，由各插件声明
const (
	FlagVerbose      = "--verbose"
	FlagMergeHistory = "--use-merge-history"
)

// Statistics 插件本次运行的计数，只用于诊断
type Statistics map[string]int

// Plugin 消费逐个版本的日志条目，维护自己的表与水位线
type Plugin interface {
	Name() string

	// RevisionQueryFlags 插件需要的 svn log 参数
	RevisionQueryFlags() []string

	StatisticTypes() []string

	// WhenDatabaseReady 每次 Refresh 开始前调用
	WhenDatabaseReady(ctx context.Context) error

	// Parse 处理一个版本；失败时该版本的所有写入回滚，水位线不前进
	Parse(ctx context.Context, entry LogEntry) error

	// Find 在项目范围内按条件查找版本，结果升序去重
	Find(ctx context.Context, criteria []string, projectPath string) ([]types.Revision, error)

	LastRevision(ctx context.Context) (types.Revision, error)

	Statistics() Statistics
}

// cacheHolder 持有进程内行缓存的插件，运行结束时释放
type cacheHolder interface {
	ClearCache()
}

// pluginBase 提供水位线与统计的公共实现
type pluginBase struct {
	name      string
	db        *meta.DB
	statTypes []string
	stats     Statistics
}

func newPluginBase(name string, db *meta.DB, statTypes ...string) pluginBase {
	return pluginBase{
		name:      name,
		db:        db,
		statTypes: statTypes,
		stats:     make(Statistics),
	}
}

func (p *pluginBase) Name() string { return p.name }

func (p *pluginBase) StatisticTypes() []string { return slices.Clone(p.statTypes) }

func (p *pluginBase) RevisionQueryFlags() []string { return nil }

func (p *pluginBase) WhenDatabaseReady(ctx context.Context) error { return nil }

// Statistics 返回副本，所有已声明的类型都在，未发生的为 0
func (p *pluginBase) Statistics() Statistics {
	out := make(Statistics, len(p.statTypes))
	for _, t := range p.statTypes {
		out[t] = 0
	}
	maps.Copy(out, p.stats)
	return out
}

func (p *pluginBase) recordStatistic(name string) {
	p.stats[name]++
}

func (p *pluginBase) LastRevision(ctx context.Context) (types.Revision, error) {
	return meta.NewFiller(p.db.GetConn()).LastRevision(ctx, p.name)
}

// parse 在单个事务里执行 fn 并推进水位线
// 水位线只增不减: 重放旧版本不会把它拉回去
func (p *pluginBase) parse(ctx context.Context, revision types.Revision, fn func(f *meta.Filler) error) error {
	return p.db.GetConn().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		f := meta.NewFiller(tx)

		if err := fn(f); err != nil {
			return err
		}

		last, err := f.LastRevision(ctx, p.name)
		if err != nil {
			return err
		}
		if revision > last {
			return f.SetLastRevision(ctx, p.name, revision)
		}
		return nil
	})
}

// projectID 把项目根路径解析为 ID，不存在时报错
func (p *pluginBase) projectID(ctx context.Context, projectPath string) (int64, error) {
	id, found, err := meta.NewFiller(p.db.GetConn()).FindProject(ctx, projectPath)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, errors.Newf(errors.CodeNotFound, "The project with %q path not found.", projectPath)
	}
	return id, nil
}

func (p *pluginBase) unsupportedField(field string) error {
	return errors.Newf(errors.CodeInvalidInput, "Searching by %q is not supported by %q plugin.", field, p.name)
}

// assertNoMissingRevisions 批量取详情时，每个请求的版本都必须有数据
func (p *pluginBase) assertNoMissingRevisions(requested []types.Revision, found func(types.Revision) bool) error {
	var missing []string
	for _, r := range requested {
		if !found(r) {
			missing = append(missing, r.String())
		}
	}
	if len(missing) > 0 {
		return errors.Newf(errors.CodeNotFound, "Revision(-s) %q not found by %q plugin.", strings.Join(missing, ", "), p.name)
	}
	return nil
}

// pluck 执行单列查询并合并进结果集
func pluck(query *gorm.DB, column string, into map[types.Revision]struct{}) error {
	var revisions []types.Revision
	if err := query.Pluck(column, &revisions).Error; err != nil {
		return errors.Wrap(err, errors.CodeDatabase, "failed to query revisions")
	}
	for _, r := range revisions {
		into[r] = struct{}{}
	}
	return nil
}

// chunkRevisions 控制 IN (...) 的参数个数
func chunkRevisions(revisions []types.Revision, size int) [][]types.Revision {
	var chunks [][]types.Revision
	for start := 0; start < len(revisions); start += size {
		chunks = append(chunks, revisions[start:min(start+size, len(revisions))])
	}
	return chunks
}

// projectScoped 版本与项目关联的公共查询
func projectScoped(conn *gorm.DB, table, revisionColumn string, projectID int64) *gorm.DB {
	return conn.Table(table).
		Joins("JOIN commit_projects cpr ON cpr.revision = "+revisionColumn).
		Where("cpr.project_id = ?", projectID)
}

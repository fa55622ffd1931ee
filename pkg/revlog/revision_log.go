package revlog

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"time"

	"revvault/pkg/logging"
	"revvault/pkg/meta"
	"revvault/pkg/types"

	"github.com/jmgilman/go/errors"
)

// DefaultBatchSize 单次 svn log 取回的版本数
const DefaultBatchSize = 1000

// LogSource 提供版本库的日志，由 connector.Connector 实现
type LogSource interface {
	HeadRevision(ctx context.Context, repositoryURL string) (types.Revision, error)
	Log(ctx context.Context, repositoryURL string, from, to types.Revision, flags []string) ([]byte, error)
}

// RevisionLog 驱动插件增量索引版本库，并把查询分派给插件
type RevisionLog struct {
	repositoryURL string
	source        LogSource
	db            *meta.DB
	logger        *slog.Logger
	batchSize     int

	plugins []Plugin
	byName  map[string]Plugin
}

type Option func(*RevisionLog)

func WithLogger(logger *slog.Logger) Option {
	return func(r *RevisionLog) { r.logger = logger }
}

func WithBatchSize(size int) Option {
	return func(r *RevisionLog) {
		if size > 0 {
			r.batchSize = size
		}
	}
}

func NewRevisionLog(repositoryURL string, source LogSource, db *meta.DB, opts ...Option) *RevisionLog {
	r := &RevisionLog{
		repositoryURL: repositoryURL,
		source:        source,
		db:            db,
		logger:        logging.Discard(),
		batchSize:     DefaultBatchSize,
		byName:        make(map[string]Plugin),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterPlugin 插件按注册顺序处理每个版本
func (r *RevisionLog) RegisterPlugin(p Plugin) error {
	if _, ok := r.byName[p.Name()]; ok {
		return errors.Newf(errors.CodeInvalidInput, "The revision log plugin %q is already registered.", p.Name())
	}
	r.plugins = append(r.plugins, p)
	r.byName[p.Name()] = p
	return nil
}

// Plugin 按名称取插件
func (r *RevisionLog) Plugin(name string) (Plugin, error) {
	p, ok := r.byName[name]
	if !ok {
		return nil, errors.Newf(errors.CodeInvalidInput, "The %q revision log plugin is unknown.", name)
	}
	return p, nil
}

func (r *RevisionLog) Plugins() []Plugin { return slices.Clone(r.plugins) }

func (r *RevisionLog) RepositoryURL() string { return r.repositoryURL }

// Refresh 把尚未索引的版本交给插件处理
// 返回本次处理的版本数
func (r *RevisionLog) Refresh(ctx context.Context) (n int, err error) {
	started := time.Now()
	defer func() {
		logging.LogOperation(ctx, r.logger, "revlog.Refresh", started, err,
			slog.String("url", r.repositoryURL),
			slog.Int("revisions", n),
		)
		r.clearCaches()
	}()

	// 1. 插件准备 (例如重建冲突检测器)
	for _, p := range r.plugins {
		if err := p.WhenDatabaseReady(ctx); err != nil {
			return 0, err
		}
	}

	// 2. 每个插件的水位线，最小者决定起点
	watermarks := make(map[string]types.Revision, len(r.plugins))
	for _, p := range r.plugins {
		last, err := p.LastRevision(ctx)
		if err != nil {
			return 0, err
		}
		watermarks[p.Name()] = last
	}
	from := minRevision(watermarks) + 1

	head, err := r.source.HeadRevision(ctx, r.repositoryURL)
	if err != nil {
		return 0, err
	}

	// 3. 分批拉取日志，逐版本交给全部插件
	flags := r.queryFlags()
	for batchStart := from; batchStart <= head; batchStart += types.Revision(r.batchSize) {
		batchEnd := min(batchStart+types.Revision(r.batchSize)-1, head)

		data, err := r.source.Log(ctx, r.repositoryURL, batchStart, batchEnd, flags)
		if err != nil {
			return n, err
		}
		entries, err := ParseLog(data)
		if err != nil {
			return n, err
		}

		for _, entry := range entries {
			for _, p := range r.plugins {
				if entry.Revision <= watermarks[p.Name()] {
					continue
				}
				if err := p.Parse(ctx, entry); err != nil {
					return n, errors.Wrapf(err, errors.GetCode(err), "plugin %q failed on revision %d", p.Name(), entry.Revision)
				}
				watermarks[p.Name()] = entry.Revision
			}
			n++
		}

		r.logger.Debug("revision batch indexed",
			slog.Int64("from", int64(batchStart)),
			slog.Int64("to", int64(batchEnd)),
		)
	}

	// 4. 保存统计
	if err := r.saveStatistics(ctx); err != nil {
		return n, err
	}
	return n, nil
}

// queryFlags 合并所有插件需要的参数，保持首次出现的顺序
func (r *RevisionLog) queryFlags() []string {
	var flags []string
	for _, p := range r.plugins {
		for _, f := range p.RevisionQueryFlags() {
			if !slices.Contains(flags, f) {
				flags = append(flags, f)
			}
		}
	}
	return flags
}

func (r *RevisionLog) saveStatistics(ctx context.Context) error {
	f := meta.NewFiller(r.db.GetConn())
	for _, p := range r.plugins {
		if len(p.StatisticTypes()) == 0 {
			continue
		}
		if err := f.SetStatistics(ctx, p.Name(), p.Statistics()); err != nil {
			return err
		}
	}
	return nil
}

func (r *RevisionLog) clearCaches() {
	for _, p := range r.plugins {
		if c, ok := p.(cacheHolder); ok {
			c.ClearCache()
		}
	}
}

// Find 把查询交给指定插件
func (r *RevisionLog) Find(ctx context.Context, plugin string, criteria []string, projectPath string) ([]types.Revision, error) {
	p, err := r.Plugin(plugin)
	if err != nil {
		return nil, err
	}
	return p.Find(ctx, criteria, projectPath)
}

// LastRevision 全部插件都处理完的最高版本
func (r *RevisionLog) LastRevision(ctx context.Context) (types.Revision, error) {
	watermarks := make(map[string]types.Revision, len(r.plugins))
	for _, p := range r.plugins {
		last, err := p.LastRevision(ctx)
		if err != nil {
			return 0, err
		}
		watermarks[p.Name()] = last
	}
	return minRevision(watermarks), nil
}

// Statistics 本进程内各插件的统计
func (r *RevisionLog) Statistics() map[string]Statistics {
	out := make(map[string]Statistics, len(r.plugins))
	for _, p := range r.plugins {
		out[p.Name()] = p.Statistics()
	}
	return out
}

// StoredStatistics 最近一次 Refresh 落库的统计，没有统计项的插件不出现
func (r *RevisionLog) StoredStatistics(ctx context.Context) (map[string]Statistics, error) {
	states, err := meta.NewFiller(r.db.GetConn()).PluginStates(ctx)
	if err != nil {
		return nil, err
	}

	out := make(map[string]Statistics, len(states))
	for _, state := range states {
		if len(state.Statistics) == 0 {
			continue
		}
		var stats Statistics
		if err := json.Unmarshal(state.Statistics, &stats); err != nil {
			return nil, errors.Wrapf(err, errors.CodeSchemaFailed, "malformed statistics of %q plugin", state.Name)
		}
		out[state.Name] = stats
	}
	return out, nil
}

func minRevision(watermarks map[string]types.Revision) types.Revision {
	first := true
	var result types.Revision
	for _, r := range watermarks {
		if first || r < result {
			result = r
			first = false
		}
	}
	return result
}

package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"revvault/pkg/connector"
	"revvault/pkg/meta"
	"revvault/pkg/refs"
	"revvault/pkg/revlog"

	"github.com/cespare/xxhash/v2"
	"github.com/jmgilman/go/errors"
	"github.com/spf13/viper"
)

// Repository 是一次命令所面对的版本库: 索引、插件以及目标路径在版本库中的位置
type Repository struct {
	RootURL string // 版本库根 URL
	URL     string // 目标 (工作副本或 URL) 对应的 URL

	// RelativePath 目标相对版本库根的路径，例如 "/proj/trunk/lib"，根目录为 ""
	RelativePath string
	ProjectPath  string // 例如 "/proj/"
	RefName      string // 目标不在任何引用下时为空

	DB  *meta.DB
	Log *revlog.RevisionLog

	Paths   *revlog.PathsPlugin
	Summary *revlog.SummaryPlugin
	Bugs    *revlog.BugsPlugin
	Merges  *revlog.MergesPlugin
	Refs    *revlog.RefsPlugin
}

// OpenRepository 解析目标所在的版本库并打开它的索引
// pathOrURL 可以是工作副本路径，也可以是 URL
func (a *App) OpenRepository(ctx context.Context, pathOrURL string) (*Repository, error) {
	// 1. 定位版本库
	targetURL, err := a.Connector.GetWorkingCopyURL(ctx, pathOrURL)
	if err != nil {
		return nil, err
	}
	rootURL, err := a.Connector.GetRepositoryRoot(ctx, targetURL)
	if err != nil {
		return nil, err
	}

	// 2. 每个版本库一个索引
	db, err := meta.NewDB(ctx, databaseConfig(a.StoragePath, rootURL))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabase, "failed to open revision index")
	}

	repo, err := newRepository(rootURL, a.Connector, db, a.Logger, viper.GetStringSlice("bugs.log-regex"))
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	// 3. 目标在版本库中的位置
	if err := repo.locate(targetURL); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// newRepository 组装插件，注册顺序即处理顺序
func newRepository(rootURL string, source revlog.LogSource, db *meta.DB, logger *slog.Logger, bugPatterns []string) (*Repository, error) {
	bugs, err := revlog.NewBugsPlugin(db, bugPatterns)
	if err != nil {
		return nil, err
	}

	resolver, err := refs.NewResolver(refs.DefaultLayout)
	if err != nil {
		return nil, err
	}

	paths := revlog.NewPathsPlugin(db, resolver, revlog.NewCollisionDetector())
	repo := &Repository{
		RootURL: rootURL,
		URL:     rootURL,
		DB:      db,
		Log:     revlog.NewRevisionLog(rootURL, source, db, revlog.WithLogger(logger)),
		Paths:   paths,
		Summary: revlog.NewSummaryPlugin(db),
		Bugs:    bugs,
		Merges:  revlog.NewMergesPlugin(db),
		Refs:    revlog.NewRefsPlugin(db, paths),
	}

	for _, p := range []revlog.Plugin{repo.Paths, repo.Summary, repo.Bugs, repo.Merges, repo.Refs} {
		if err := repo.Log.RegisterPlugin(p); err != nil {
			return nil, err
		}
	}
	return repo, nil
}

// locate 根据目标 URL 计算相对路径、项目与引用
// 不在任何引用下的目标以自身作为项目
func (r *Repository) locate(targetURL string) error {
	rootPath, err := connector.GetPathFromURL(r.RootURL)
	if err != nil {
		return err
	}
	targetPath, err := connector.GetPathFromURL(targetURL)
	if err != nil {
		return err
	}

	rootPath = strings.TrimSuffix(rootPath, "/")
	if targetPath != rootPath && !strings.HasPrefix(targetPath, rootPath+"/") {
		return errors.Newf(errors.CodeInvalidInput, "The %q url is outside of %q repository.", targetURL, r.RootURL)
	}

	r.URL = targetURL
	r.RelativePath = strings.TrimSuffix(strings.TrimPrefix(targetPath, rootPath), "/")

	if ref, root, ok := refs.RefByPath(r.RelativePath + "/"); ok {
		r.ProjectPath = root
		r.RefName = ref
	} else {
		r.ProjectPath = r.RelativePath + "/"
		r.RefName = ""
	}
	return nil
}

// IsRefRoot 目标是否正好是某个引用的根目录
func (r *Repository) IsRefRoot() bool {
	return r.RefName != "" && r.ProjectPath+r.RefName == r.RelativePath
}

// Identifier 用于输出的 "<项目> project (ref: <引用>)"
func (r *Repository) Identifier() string {
	if r.RefName != "" {
		return fmt.Sprintf("%s project (ref: %s)", r.ProjectPath, r.RefName)
	}
	return fmt.Sprintf("%s project (all refs)", r.ProjectPath)
}

func (r *Repository) Close() error {
	return r.DB.Close()
}

// databaseConfig sqlite 下每个版本库一个文件 log_<xxhash(根 URL)>.sqlite
// postgres 下配置的数据库专属于一个版本库
func databaseConfig(storagePath, rootURL string) meta.Config {
	return meta.Config{
		Type:     viper.GetString("database.type"),
		Path:     filepath.Join(storagePath, fmt.Sprintf("log_%016x.sqlite", xxhash.Sum64String(rootURL))),
		Host:     viper.GetString("database.host"),
		Port:     viper.GetInt("database.port"),
		User:     viper.GetString("database.user"),
		Password: viper.GetString("database.password"),
		DBName:   viper.GetString("database.dbname"),
		SSLMode:  viper.GetString("database.sslmode"),
		LogSQL:   viper.GetBool("database.log-sql"),
	}
}

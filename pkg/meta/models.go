package meta

import (
	"time"

	"revvault/pkg/types"

	"gorm.io/datatypes"
)

// Path 是版本库中出现过的每一个路径 (目录带结尾 "/")
// 身份由 PathHash 决定，其余字段随着新的历史证据原地更新
type Path struct {
	ID               int64      `gorm:"primaryKey"`
	Path             string     `gorm:"type:text;not null"`
	PathNestingLevel int        `gorm:"not null"`
	PathHash         types.Hash `gorm:"type:char(64);uniqueIndex;not null"`

	// 所属项目与引用，未归属时为空串
	ProjectPath string `gorm:"type:text;not null;index"`
	RefName     string `gorm:"type:varchar(255);not null"`

	RevisionAdded    types.Revision  `gorm:"not null"`
	RevisionDeleted  *types.Revision // 被删除时设置，重新出现时清空
	RevisionLastSeen types.Revision  `gorm:"not null"`
}

// Project 以根路径 (例如 "/projects/app/") 唯一
type Project struct {
	ID   int64  `gorm:"primaryKey"`
	Path string `gorm:"type:text;uniqueIndex;not null"`
}

// ProjectRef 例如 "trunk"、"branches/feature"
type ProjectRef struct {
	ID        int64  `gorm:"primaryKey"`
	ProjectID int64  `gorm:"uniqueIndex:idx_project_ref;not null"`
	Name      string `gorm:"type:varchar(255);uniqueIndex:idx_project_ref;not null"`
}

// Commit 的主键是服务端分配的版本号，不自增
type Commit struct {
	Revision types.Revision `gorm:"primaryKey;autoIncrement:false"`
	Author   string         `gorm:"index;type:varchar(255)"`
	Date     time.Time      `gorm:"index"`
	Message  string         `gorm:"type:text"`
}

// CommitPath 只追加，不更新
type CommitPath struct {
	Revision     types.Revision  `gorm:"primaryKey;autoIncrement:false"`
	PathID       int64           `gorm:"primaryKey;autoIncrement:false;index"`
	Action       types.Action    `gorm:"type:char(1);not null"`
	Kind         types.PathKind  `gorm:"type:varchar(4);not null"`
	CopyRevision *types.Revision // 复制来源版本
	CopyPathID   *int64          // 复制来源路径
}

type CommitProject struct {
	Revision  types.Revision `gorm:"primaryKey;autoIncrement:false"`
	ProjectID int64          `gorm:"primaryKey;autoIncrement:false;index"`
}

type CommitRef struct {
	Revision types.Revision `gorm:"primaryKey;autoIncrement:false"`
	RefID    int64          `gorm:"primaryKey;autoIncrement:false;index"`
}

type CommitBug struct {
	Revision types.Revision `gorm:"primaryKey;autoIncrement:false"`
	Bug      string         `gorm:"primaryKey;type:varchar(64);index"`
}

// Merge 记录一次合并提交带进来的版本
type Merge struct {
	MergeRevision  types.Revision `gorm:"primaryKey;autoIncrement:false"`
	MergedRevision types.Revision `gorm:"primaryKey;autoIncrement:false;index"`
}

// PluginData 每个插件一行: 水位线与最近一次运行的统计
type PluginData struct {
	Name         string         `gorm:"primaryKey;type:varchar(64)"`
	LastRevision types.Revision `gorm:"not null"`

	// Statistics: {"path_added": 12, ...}，只用于诊断展示
	Statistics datatypes.JSON
}

// TableName 强制指定表名
func (Path) TableName() string          { return "paths" }
func (Project) TableName() string       { return "projects" }
func (ProjectRef) TableName() string    { return "project_refs" }
func (Commit) TableName() string        { return "commits" }
func (CommitPath) TableName() string    { return "commit_paths" }
func (CommitProject) TableName() string { return "commit_projects" }
func (CommitRef) TableName() string     { return "commit_refs" }
func (CommitBug) TableName() string     { return "commit_bugs" }
func (Merge) TableName() string         { return "merges" }
func (PluginData) TableName() string    { return "plugin_data" }

// Models 返回需要迁移的全部模型
func Models() []any {
	return []any{
		&Path{}, &Project{}, &ProjectRef{},
		&Commit{}, &CommitPath{}, &CommitProject{}, &CommitRef{},
		&CommitBug{}, &Merge{}, &PluginData{},
	}
}

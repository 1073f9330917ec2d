package meta

import (
	"time"

	"tensorvault/pkg/types"

	"gorm.io/datatypes"
)

// Models 返回需要迁移的全部表
func Models() []any {
	return []any{&Ref{}, &CommitModel{}, &CommitGraph{}}
}

// Ref 存储分支指针 (例如 "refs/heads/main")
// 对应 Git 的 .git/refs/*
type Ref struct {
	// Name 是主键，例如 "HEAD" 或 "refs/heads/main"
	Name string `gorm:"primaryKey;type:varchar(255)"`

	// CommitHash 指向当前的 Commit ID
	CommitHash types.Hash `gorm:"type:char(64);not null"`

	// Version 用于乐观锁并发控制 (CAS)
	// 每次更新时 +1，防止并发覆盖
	Version int64 `gorm:"default:1"`

	UpdatedAt time.Time
}

// CommitModel 是 core.Commit 在关系型数据库中的投影 (索引)
// commit-graph 可以直接从这里枚举和解析 Commit，不必访问对象存储
type CommitModel struct {
	// Hash 是主键 (Merkle Root)
	Hash types.Hash `gorm:"primaryKey;type:char(64)"`

	Author    string `gorm:"index;type:varchar(100)"`
	Message   string `gorm:"type:text"`
	Timestamp int64  `gorm:"index"`

	// 树结构指针
	TreeHash types.Hash `gorm:"type:char(64);not null"`

	// Parents: ["hash1", "hash2", ...]，顺序即父节点顺序
	Parents datatypes.JSON

	// Meta: 训练超参数、Metrics、Tags 等非结构化数据
	Meta datatypes.JSON `gorm:"index:idx_commit_meta"`

	CreatedAt time.Time
}

// TableName 强制指定表名
func (CommitModel) TableName() string {
	return "commits"
}

// CommitGraph 记录每一次发布的 commit-graph 文件
type CommitGraph struct {
	// Checksum 是文件 trailer 的 Hex，同时决定文件名
	Checksum string `gorm:"primaryKey;type:varchar(64)"`

	Name          string `gorm:"type:varchar(255);not null"`
	Algo          string `gorm:"type:varchar(16)"`
	Source        string `gorm:"type:varchar(16)"` // "store" 或 "meta"
	Commits       int
	OverflowEdges int

	CreatedAt time.Time `gorm:"index"`
}

func (CommitGraph) TableName() string {
	return "commit_graphs"
}

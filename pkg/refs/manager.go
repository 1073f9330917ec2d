package refs

import (
	"context"
	"errors"
	"fmt"

	"tensorvault/pkg/meta"
	"tensorvault/pkg/types"
)

const HeadRef = "HEAD"

var (
	ErrNoHead    = errors.New("HEAD not found (clean repo)")
	ErrStaleHead = errors.New("HEAD was moved by someone else, please retry")
)

// Manager 负责管理引用 (Refs)，目前主要是 HEAD
// 引用存放在元数据库中，通过版本号做乐观锁
type Manager struct {
	repo *meta.Repository
}

func NewManager(repo *meta.Repository) *Manager {
	return &Manager{repo: repo}
}

// GetHead 读取当前的 Commit Hash 和版本号
// 如果是新仓库（没提交过），返回 ErrNoHead
func (m *Manager) GetHead(ctx context.Context) (types.Hash, int64, error) {
	ref, err := m.repo.GetRef(ctx, HeadRef)
	if errors.Is(err, meta.ErrRefNotFound) {
		return "", 0, ErrNoHead
	}
	if err != nil {
		return "", 0, fmt.Errorf("failed to read HEAD: %w", err)
	}
	return ref.CommitHash, ref.Version, nil
}

// UpdateHead 把 HEAD 移动到 commitHash
// oldVersion 是调用方读到的版本号，新仓库传 0
func (m *Manager) UpdateHead(ctx context.Context, commitHash types.Hash, oldVersion int64) error {
	err := m.repo.UpdateRef(ctx, HeadRef, commitHash, oldVersion)
	if errors.Is(err, meta.ErrConcurrentUpdate) {
		return ErrStaleHead
	}
	return err
}

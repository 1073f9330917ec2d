package meta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"tensorvault/pkg/commitgraph"
	"tensorvault/pkg/core"
	"tensorvault/pkg/types"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// 枚举 Commit 时每批读取的行数
const commitBatchSize = 1000

// -----------------------------------------------------------------------------
// 3. commit-graph 数据源
// -----------------------------------------------------------------------------

// ForEachObject 按批次枚举已索引的 Commit (实现 commitgraph.Enumerator)
// commits 表里只有 Commit，类型恒为 core.TypeCommit
func (r *Repository) ForEachObject(ctx context.Context, visit func(types.Hash, core.ObjectType) error) error {
	var batch []CommitModel
	var visitErr error

	result := r.db.GetConn().WithContext(ctx).
		Model(&CommitModel{}).
		Select("hash").
		FindInBatches(&batch, commitBatchSize, func(tx *gorm.DB, _ int) error {
			for _, c := range batch {
				if err := visit(c.Hash, core.TypeCommit); err != nil {
					visitErr = err
					return err
				}
			}
			return nil
		})

	if visitErr != nil {
		return visitErr
	}
	if result.Error != nil {
		return fmt.Errorf("failed to scan commits: %w", result.Error)
	}
	return nil
}

// ApproxObjectCount 返回 commits 表的行数 (实现 storage.Estimator)
func (r *Repository) ApproxObjectCount(ctx context.Context) (int, error) {
	var count int64
	err := r.db.GetConn().WithContext(ctx).Model(&CommitModel{}).Count(&count).Error
	return int(count), err
}

// ResolveCommit 从投影中还原 Commit 的 tree、parents 和时间 (实现 commitgraph.Resolver)
func (r *Repository) ResolveCommit(ctx context.Context, hash types.Hash) (*commitgraph.CommitInfo, error) {
	c, err := r.GetCommit(ctx, hash)
	if err != nil {
		return nil, err
	}

	var parents []types.Hash
	if len(c.Parents) > 0 {
		if err := json.Unmarshal(c.Parents, &parents); err != nil {
			return nil, fmt.Errorf("commit %s has malformed parents: %w", hash, err)
		}
	}

	return &commitgraph.CommitInfo{
		Tree:      c.TreeHash,
		Parents:   parents,
		Timestamp: c.Timestamp,
	}, nil
}

// RecordGraph 记录一次已发布的 commit-graph (幂等)
func (r *Repository) RecordGraph(ctx context.Context, res *commitgraph.Result, algo commitgraph.HashAlgo, source string) error {
	record := CommitGraph{
		Checksum:      res.Checksum,
		Name:          res.Name,
		Algo:          algo.String(),
		Source:        source,
		Commits:       res.Commits,
		OverflowEdges: res.OverflowEdges,
	}
	err := r.db.GetConn().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "checksum"}},
			DoNothing: true,
		}).
		Create(&record).Error
	if err != nil {
		return fmt.Errorf("failed to record commit-graph: %w", err)
	}
	return nil
}

// LatestGraph 返回最近一次发布的 commit-graph
func (r *Repository) LatestGraph(ctx context.Context) (*CommitGraph, error) {
	var g CommitGraph
	err := r.db.GetConn().WithContext(ctx).
		Order("created_at DESC").
		First(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrGraphNotFound
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

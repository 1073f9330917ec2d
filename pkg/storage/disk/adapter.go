package disk

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"tensorvault/pkg/core"
	"tensorvault/pkg/storage"
	"tensorvault/pkg/types"
)

// 估算对象数量时最多抽样的分片目录数
const sampleShards = 4

// Adapter 实现了 storage.Store 接口
type Adapter struct {
	rootPath string // 比如: /home/user/.tv/objects
}

// NewAdapter 创建一个新的磁盘存储适配器
func NewAdapter(root string) (*Adapter, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root storage dir: %w", err)
	}
	return &Adapter{rootPath: root}, nil
}

// Root 返回对象目录
func (s *Adapter) Root() string { return s.rootPath }

// layout 返回哈希对应的物理路径
// 策略：使用前 2 个字符作为子目录 (Sharding)
// Example: hash "aabbcc..." -> root/aa/bbcc...
func (s *Adapter) layout(hash types.Hash) string {
	h := string(hash)
	if len(h) < 2 {
		return filepath.Join(s.rootPath, h)
	}
	return filepath.Join(s.rootPath, h[:2], h[2:])
}

func (s *Adapter) Put(ctx context.Context, obj core.Object) error {
	targetPath := s.layout(obj.ID())

	// 幂等性：已经存在直接跳过 (CAS 的好处)
	if _, err := os.Stat(targetPath); err == nil {
		return nil
	}

	dir := filepath.Dir(targetPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	// 先写临时文件再 Rename：要么文件不存在，要么文件是完整的
	tempFile, err := os.CreateTemp(dir, "temp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tempFile.Name())

	if _, err := tempFile.Write(obj.Bytes()); err != nil {
		tempFile.Close()
		return err
	}
	if err := tempFile.Close(); err != nil {
		return err
	}

	return os.Rename(tempFile.Name(), targetPath)
}

func (s *Adapter) Get(ctx context.Context, hash types.Hash) (io.ReadCloser, error) {
	f, err := os.Open(s.layout(hash))
	if os.IsNotExist(err) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Adapter) Has(ctx context.Context, hash types.Hash) (bool, error) {
	_, err := os.Stat(s.layout(hash))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// ExpandHash 在分片目录内按前缀查找唯一对象
func (s *Adapter) ExpandHash(ctx context.Context, short types.HashPrefix) (types.Hash, error) {
	prefix := strings.ToLower(string(short))
	if len(prefix) < 4 {
		return "", fmt.Errorf("hash prefix too short")
	}

	entries, err := os.ReadDir(filepath.Join(s.rootPath, prefix[:2]))
	if os.IsNotExist(err) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", err
	}

	var found types.Hash
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix[2:]) || !isObjectName(e.Name()) {
			continue
		}
		if found != "" {
			return "", fmt.Errorf("%w: %s", storage.ErrAmbiguousHash, prefix)
		}
		found = types.Hash(prefix[:2] + e.Name())
	}
	if found == "" {
		return "", fmt.Errorf("%w: %s", storage.ErrNotFound, prefix)
	}
	return found, nil
}

// ForEach 遍历所有分片目录
// 跳过非分片目录 (如 info/) 以及写入中的临时文件
func (s *Adapter) ForEach(ctx context.Context, fn func(hash types.Hash) error) error {
	shards, err := s.shardDirs()
	if err != nil {
		return err
	}

	for _, shard := range shards {
		if err := ctx.Err(); err != nil {
			return err
		}
		entries, err := os.ReadDir(filepath.Join(s.rootPath, shard))
		if err != nil {
			return fmt.Errorf("failed to read shard %s: %w", shard, err)
		}
		for _, e := range entries {
			if e.IsDir() || !isObjectName(e.Name()) {
				continue
			}
			if err := fn(types.Hash(shard + e.Name())); err != nil {
				return err
			}
		}
	}
	return nil
}

// ApproxObjectCount 抽样几个分片目录，按平均值外推
func (s *Adapter) ApproxObjectCount(ctx context.Context) (int, error) {
	shards, err := s.shardDirs()
	if err != nil || len(shards) == 0 {
		return 0, err
	}

	sampled, total := 0, 0
	for _, shard := range shards {
		if sampled == sampleShards {
			break
		}
		entries, err := os.ReadDir(filepath.Join(s.rootPath, shard))
		if err != nil {
			return 0, err
		}
		total += len(entries)
		sampled++
	}
	return total * len(shards) / sampled, nil
}

func (s *Adapter) shardDirs() ([]string, error) {
	entries, err := os.ReadDir(s.rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read object dir: %w", err)
	}
	var shards []string
	for _, e := range entries {
		if e.IsDir() && len(e.Name()) == 2 && isHex(e.Name()) {
			shards = append(shards, e.Name())
		}
	}
	return shards, nil
}

// isObjectName 判断分片目录下的文件名是否是对象 (Hash 去掉前 2 个字符)
func isObjectName(name string) bool {
	return len(name) == 62 && isHex(name)
}

func isHex(s string) bool {
	_, err := hex.DecodeString(s)
	return err == nil && strings.ToLower(s) == s
}

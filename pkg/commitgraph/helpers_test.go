package commitgraph

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tensorvault/pkg/core"
	"tensorvault/pkg/types"

	"github.com/stretchr/testify/require"
)

// oid 生成首字节为 b 的 SHA-256 宽度 Hash，方便控制排序
func oid(b byte, tail ...byte) types.Hash {
	raw := make([]byte, SHA256.Size())
	raw[0] = b
	copy(raw[1:], tail)
	return types.HashFromRaw(raw)
}

func sha1oid(b byte) types.Hash {
	raw := make([]byte, SHA1.Size())
	raw[0] = b
	return types.HashFromRaw(raw)
}

type memObject struct {
	hash types.Hash
	typ  core.ObjectType
}

// memRepo 是内存中的对象枚举器 + Commit 解析器
type memRepo struct {
	objects    []memObject
	commits    map[types.Hash]*CommitInfo
	resolveErr map[types.Hash]error
	approx     int
	resolved   int
}

func newMemRepo() *memRepo {
	return &memRepo{
		commits:    make(map[types.Hash]*CommitInfo),
		resolveErr: make(map[types.Hash]error),
	}
}

func (m *memRepo) addCommit(h, tree types.Hash, ts int64, parents ...types.Hash) {
	m.objects = append(m.objects, memObject{hash: h, typ: core.TypeCommit})
	m.commits[h] = &CommitInfo{Tree: tree, Parents: parents, Timestamp: ts}
}

func (m *memRepo) addObject(h types.Hash, typ core.ObjectType) {
	m.objects = append(m.objects, memObject{hash: h, typ: typ})
}

func (m *memRepo) ForEachObject(ctx context.Context, visit func(types.Hash, core.ObjectType) error) error {
	for _, o := range m.objects {
		if err := visit(o.hash, o.typ); err != nil {
			return err
		}
	}
	return nil
}

func (m *memRepo) ApproxObjectCount(ctx context.Context) (int, error) {
	return m.approx, nil
}

func (m *memRepo) ResolveCommit(ctx context.Context, h types.Hash) (*CommitInfo, error) {
	m.resolved++
	if err := m.resolveErr[h]; err != nil {
		return nil, err
	}
	info, ok := m.commits[h]
	if !ok {
		return nil, fmt.Errorf("commit %s not found", h)
	}
	return info, nil
}

// mustGenerate 生成 graph 文件并解析，失败直接终止测试
func mustGenerate(t *testing.T, repo *memRepo, algo HashAlgo) (*Result, *graphFile) {
	t.Helper()
	gen := NewGenerator(repo, repo, Config{Dir: t.TempDir(), Algo: algo})
	res, err := gen.Generate(context.Background())
	require.NoError(t, err)

	buf, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	g, err := parseGraph(buf)
	require.NoError(t, err)
	require.NoError(t, g.verify())
	return res, g
}

// raw 把 Hex Hash 转回字节，测试里用于比较 OIDL 内容
func raw(t *testing.T, h types.Hash) []byte {
	t.Helper()
	b, err := hex.DecodeString(h.String())
	require.NoError(t, err)
	return b
}

// graphFiles 列出目录下所有已发布的 graph 文件
func graphFiles(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "graph-*.graph"))
	require.NoError(t, err)
	return matches
}

func tempFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	var out []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "tmp_graph_") {
			out = append(out, e.Name())
		}
	}
	return out
}

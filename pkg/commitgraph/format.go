// Package commitgraph 为对象存储中的所有 Commit 生成 commit-graph 文件。
//
// commit-graph 是一个只读的二进制索引：每个 Commit 按 Hash 排序后获得一个稠密 ID
// (即排序位置)，父节点边被解析成这个整数空间，遍历算法 (祖先查询、merge-base、log 排序)
// 不必再解码 Commit 对象本身就能拿到 tree、parents 和提交时间。
//
// 文件布局 (全部大端序):
//
//	0   "CGPH"
//	4   version, hash algo, chunk count, 0
//	8   chunk table: (count+1) x {4 字节 tag, 8 字节 offset}，最后一项 tag 为 0
//	    OIDF: 256 x uint32 累计计数
//	    OIDL: N x hash
//	    CDAT: N x {tree hash, parent1, parent2, time hi, time lo}
//	    EDGE: M x uint32 (可选，仅当存在 2 个以上父节点的 Commit)
//	end trailer: 前面全部字节的校验和
package commitgraph

import (
	"crypto/sha1"
	"crypto/sha256"
	"errors"
	"fmt"
	"hash"
	"strings"
)

const (
	signature = 0x43475048 // "CGPH"

	chunkOIDFanout  = 0x4f494446 // "OIDF"
	chunkOIDLookup  = 0x4f49444c // "OIDL"
	chunkCommitData = 0x43444154 // "CDAT"
	chunkLargeEdges = 0x45444745 // "EDGE"

	formatVersion = 1

	headerSize     = 8
	chunkEntrySize = 12
	fanoutSize     = 256 * 4
	edgeSize       = 4

	// 每条 CDAT 记录除 tree hash 外的固定部分：两个父节点槽 + 8 字节时间
	dataFixedSize = 16
)

// 父节点槽的位布局
const (
	parentNone     uint32 = 0x70000000
	parentMissing  uint32 = 0x7fffffff
	overflowNeeded uint32 = 0x80000000
	lastEdge       uint32 = 0x80000000
	edgeMask       uint32 = 0x7fffffff

	// 稠密 ID 必须小于所有哨兵值
	maxCommits = int(parentNone)
)

var (
	ErrCommitParse      = errors.New("failed to parse commit")
	ErrTooManyCommits   = errors.New("too many commits for commit-graph")
	ErrHashWidth        = errors.New("hash width does not match algorithm")
	ErrMalformedGraph   = errors.New("malformed commit-graph file")
	ErrChecksumMismatch = errors.New("commit-graph checksum mismatch")
)

// HashAlgo 是文件头中的 hash 算法标识
type HashAlgo byte

const (
	SHA1   HashAlgo = 1
	SHA256 HashAlgo = 2
)

// Size 返回该算法的原始 Hash 字节数
func (a HashAlgo) Size() int {
	switch a {
	case SHA1:
		return sha1.Size
	case SHA256:
		return sha256.Size
	default:
		return 0
	}
}

// New 返回用于计算 trailer 校验和的 hash.Hash
func (a HashAlgo) New() hash.Hash {
	switch a {
	case SHA1:
		return sha1.New()
	default:
		return sha256.New()
	}
}

func (a HashAlgo) Valid() bool { return a == SHA1 || a == SHA256 }

func (a HashAlgo) String() string {
	switch a {
	case SHA1:
		return "sha1"
	case SHA256:
		return "sha256"
	default:
		return fmt.Sprintf("unknown(%d)", byte(a))
	}
}

// ParseHashAlgo 解析配置中的算法名
func ParseHashAlgo(s string) (HashAlgo, error) {
	switch strings.ToLower(s) {
	case "", "sha256", "sha-256":
		return SHA256, nil
	case "sha1", "sha-1":
		return SHA1, nil
	default:
		return 0, fmt.Errorf("unsupported hash algorithm %q", s)
	}
}

package commitgraph

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
)

// Report 是 VerifyFile 的检查结果
type Report struct {
	Algo          HashAlgo
	Commits       int
	OverflowEdges int
	Chunks        []string
	Checksum      string
}

// graphFile 是解析后的文件视图，各字段都切片自同一块内存
type graphFile struct {
	algo     HashAlgo
	chunkIDs []uint32
	fanout   []byte
	lookup   []byte
	data     []byte
	edges    []byte
	checksum []byte
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedGraph, fmt.Sprintf(format, args...))
}

// parseGraph 校验 header、trailer 和 chunk 表，按 chunk 切分文件
func parseGraph(buf []byte) (*graphFile, error) {
	if len(buf) < headerSize {
		return nil, malformed("file too short (%d bytes)", len(buf))
	}
	if sig := binary.BigEndian.Uint32(buf); sig != signature {
		return nil, malformed("bad signature %08x", sig)
	}
	if buf[4] != formatVersion {
		return nil, malformed("unsupported version %d", buf[4])
	}
	algo := HashAlgo(buf[5])
	if !algo.Valid() {
		return nil, malformed("unsupported hash algorithm %d", buf[5])
	}

	hs := algo.Size()
	count := int(buf[6])
	tableEnd := headerSize + chunkEntrySize*(count+1)
	if len(buf) < tableEnd+hs {
		return nil, malformed("truncated chunk table")
	}

	body, trailer := buf[:len(buf)-hs], buf[len(buf)-hs:]
	h := algo.New()
	h.Write(body)
	if sum := h.Sum(nil); !bytes.Equal(sum, trailer) {
		return nil, fmt.Errorf("%w: trailer %x, computed %x", ErrChecksumMismatch, trailer, sum)
	}

	g := &graphFile{algo: algo, checksum: trailer}
	prev := uint64(tableEnd)
	for i := 0; i <= count; i++ {
		entry := buf[headerSize+i*chunkEntrySize:]
		id := binary.BigEndian.Uint32(entry)
		off := binary.BigEndian.Uint64(entry[4:])

		if off < prev || off > uint64(len(body)) {
			return nil, malformed("chunk %d offset %d out of order", i, off)
		}
		if i == count {
			if id != 0 {
				return nil, malformed("missing chunk table terminator")
			}
			if off != uint64(len(body)) {
				return nil, malformed("chunk table ends at %d, trailer starts at %d", off, len(body))
			}
			break
		}

		end := binary.BigEndian.Uint64(buf[headerSize+(i+1)*chunkEntrySize+4:])
		if end < off || end > uint64(len(body)) {
			return nil, malformed("chunk %d overruns file", i)
		}
		chunk := body[off:end]
		switch id {
		case chunkOIDFanout:
			g.fanout = chunk
		case chunkOIDLookup:
			g.lookup = chunk
		case chunkCommitData:
			g.data = chunk
		case chunkLargeEdges:
			g.edges = chunk
		default:
			return nil, malformed("unknown chunk id %08x", id)
		}
		g.chunkIDs = append(g.chunkIDs, id)
		prev = off
	}

	if g.fanout == nil || g.lookup == nil || g.data == nil {
		return nil, malformed("required chunk missing")
	}
	if len(g.fanout) != fanoutSize {
		return nil, malformed("fanout chunk is %d bytes", len(g.fanout))
	}
	if len(g.lookup)%hs != 0 {
		return nil, malformed("lookup chunk is not a multiple of %d", hs)
	}
	if len(g.data) != g.count()*(hs+dataFixedSize) {
		return nil, malformed("commit data chunk size mismatch")
	}
	if len(g.edges)%edgeSize != 0 {
		return nil, malformed("edge chunk is not a multiple of %d", edgeSize)
	}
	return g, nil
}

func (g *graphFile) count() int { return len(g.lookup) / g.algo.Size() }

func (g *graphFile) fanoutAt(i int) uint32 {
	return binary.BigEndian.Uint32(g.fanout[i*4:])
}

func (g *graphFile) oid(i int) []byte {
	hs := g.algo.Size()
	return g.lookup[i*hs : (i+1)*hs]
}

// record 返回第 i 条 CDAT 的 tree、两个父节点槽和时间字段
func (g *graphFile) record(i int) (tree []byte, p1, p2, hi, lo uint32) {
	hs := g.algo.Size()
	rec := g.data[i*(hs+dataFixedSize) : (i+1)*(hs+dataFixedSize)]
	tree = rec[:hs]
	p1 = binary.BigEndian.Uint32(rec[hs:])
	p2 = binary.BigEndian.Uint32(rec[hs+4:])
	hi = binary.BigEndian.Uint32(rec[hs+8:])
	lo = binary.BigEndian.Uint32(rec[hs+12:])
	return
}

func (g *graphFile) edge(i int) uint32 {
	return binary.BigEndian.Uint32(g.edges[i*edgeSize:])
}

func (g *graphFile) edgeCount() int { return len(g.edges) / edgeSize }

// checkSlot 检查一个直接父节点槽 (不含溢出标记) 是否合法
func (g *graphFile) checkSlot(v uint32) bool {
	return v == parentNone || v == parentMissing || v < uint32(g.count())
}

func (g *graphFile) verify() error {
	n := g.count()

	// fanout 单调递增且与 OIDL 的首字节分布一致
	var prev uint32
	next := 0
	for b := range 256 {
		f := g.fanoutAt(b)
		if f < prev {
			return malformed("fanout decreases at %02x", b)
		}
		for next < n && int(g.oid(next)[0]) == b {
			next++
		}
		if int(f) != next {
			return malformed("fanout[%02x] = %d, expected %d", b, f, next)
		}
		prev = f
	}

	for i := 1; i < n; i++ {
		if bytes.Compare(g.oid(i-1), g.oid(i)) >= 0 {
			return malformed("lookup not strictly sorted at %d", i)
		}
	}

	edgesUsed := 0
	for i := range n {
		_, p1, p2, hi, _ := g.record(i)
		if hi > 3 {
			return malformed("commit %d: time high bits %x", i, hi)
		}
		if !g.checkSlot(p1) {
			return malformed("commit %d: bad first parent %08x", i, p1)
		}
		if p2&overflowNeeded == 0 {
			if !g.checkSlot(p2) {
				return malformed("commit %d: bad second parent %08x", i, p2)
			}
			continue
		}
		if p1 == parentNone {
			return malformed("commit %d: overflow without first parent", i)
		}

		start := int(p2 & edgeMask)
		if start != edgesUsed {
			return malformed("commit %d: edge list starts at %d, expected %d", i, start, edgesUsed)
		}
		j := start
		for ; ; j++ {
			if j >= g.edgeCount() {
				return malformed("commit %d: unterminated edge list", i)
			}
			e := g.edge(j)
			if v := e &^ lastEdge; v != parentMissing && v >= uint32(n) {
				return malformed("edge %d: bad parent %08x", j, e)
			}
			if e&lastEdge != 0 {
				break
			}
		}
		if j-start+1 < 2 {
			return malformed("commit %d: edge list shorter than two parents", i)
		}
		edgesUsed = j + 1
	}
	if edgesUsed != g.edgeCount() {
		return malformed("%d edges unreferenced", g.edgeCount()-edgesUsed)
	}
	return nil
}

// VerifyFile 读取并完整校验一个 commit-graph 文件
func VerifyFile(path string) (*Report, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	g, err := parseGraph(buf)
	if err != nil {
		return nil, err
	}
	if err := g.verify(); err != nil {
		return nil, err
	}

	report := &Report{
		Algo:          g.algo,
		Commits:       g.count(),
		OverflowEdges: g.edgeCount(),
		Checksum:      hex.EncodeToString(g.checksum),
	}
	for _, id := range g.chunkIDs {
		var tag [4]byte
		binary.BigEndian.PutUint32(tag[:], id)
		report.Chunks = append(report.Chunks, string(tag[:]))
	}
	return report, nil
}

package commitgraph

import (
	"bufio"
	"encoding/binary"
	"io"
)

// parentSlot 把一个父节点 Hash 翻译成槽
func (l *CommitList) parentSlot(parent []byte) slot {
	if parent == nil {
		return missingParent()
	}
	pos, ok := l.Position(parent)
	if !ok {
		return missingParent()
	}
	return parentAt(pos)
}

// parentSlots 计算第 i 个 Commit 的两个 CDAT 父节点槽
// edgeIndex 是该 Commit 的溢出列表在 EDGE 中的起始下标 (仅 >2 父节点时使用)
func (l *CommitList) parentSlots(c Commit, edgeIndex uint32) (slot, slot) {
	switch len(c.Parents) {
	case 0:
		return noParent(), noParent()
	case 1:
		return l.parentSlot(c.Parents[0]), noParent()
	case 2:
		return l.parentSlot(c.Parents[0]), l.parentSlot(c.Parents[1])
	default:
		return l.parentSlot(c.Parents[0]), overflowAt(edgeIndex)
	}
}

// edgesFor 返回 Commit 第 2..k 个父节点对应的 EDGE 项，最后一项带结束标记
func (l *CommitList) edgesFor(c Commit) []edge {
	if len(c.Parents) <= 2 {
		return nil
	}
	rest := c.Parents[1:]
	edges := make([]edge, len(rest))
	for i, p := range rest {
		edges[i] = edge{slot: l.parentSlot(p), last: i == len(rest)-1}
	}
	return edges
}

// chunkWriter 带粘性错误的大端写入器，第一次失败后后续写入全部忽略
type chunkWriter struct {
	w   *bufio.Writer
	buf [8]byte
	err error
}

func newChunkWriter(w io.Writer) *chunkWriter {
	return &chunkWriter{w: bufio.NewWriterSize(w, 64*1024)}
}

func (cw *chunkWriter) bytes(p []byte) {
	if cw.err != nil {
		return
	}
	_, cw.err = cw.w.Write(p)
}

func (cw *chunkWriter) be32(v uint32) {
	binary.BigEndian.PutUint32(cw.buf[:4], v)
	cw.bytes(cw.buf[:4])
}

func (cw *chunkWriter) be64(v uint64) {
	binary.BigEndian.PutUint64(cw.buf[:8], v)
	cw.bytes(cw.buf[:8])
}

func (cw *chunkWriter) flush() error {
	if cw.err != nil {
		return cw.err
	}
	return cw.w.Flush()
}

type chunk struct {
	id     uint32
	size   uint64
	offset uint64
	write  func(cw *chunkWriter, l *CommitList)
}

// layout 决定写哪些 chunk 以及各自的偏移
func layout(l *CommitList) []chunk {
	n := uint64(l.Len())
	hashSize := uint64(l.algo.Size())

	chunks := []chunk{
		{id: chunkOIDFanout, size: fanoutSize, write: writeFanout},
		{id: chunkOIDLookup, size: n * hashSize, write: writeOIDLookup},
		{id: chunkCommitData, size: n * (hashSize + dataFixedSize), write: writeCommitData},
	}
	if l.overflowEdges > 0 {
		chunks = append(chunks, chunk{
			id:    chunkLargeEdges,
			size:  uint64(l.overflowEdges) * edgeSize,
			write: writeLargeEdges,
		})
	}

	offset := uint64(headerSize + chunkEntrySize*(len(chunks)+1))
	for i := range chunks {
		chunks[i].offset = offset
		offset += chunks[i].size
	}
	return chunks
}

// encode 写出 header、chunk 表和全部 chunk (不含 trailer)
func encode(w io.Writer, l *CommitList) error {
	chunks := layout(l)
	cw := newChunkWriter(w)

	cw.be32(signature)
	cw.bytes([]byte{formatVersion, byte(l.algo), byte(len(chunks)), 0})

	for _, c := range chunks {
		cw.be32(c.id)
		cw.be64(c.offset)
	}
	last := chunks[len(chunks)-1]
	cw.be32(0)
	cw.be64(last.offset + last.size)

	for _, c := range chunks {
		c.write(cw, l)
	}
	return cw.flush()
}

func writeFanout(cw *chunkWriter, l *CommitList) {
	for _, v := range l.fanout {
		cw.be32(v)
	}
}

func writeOIDLookup(cw *chunkWriter, l *CommitList) {
	for _, c := range l.commits {
		cw.bytes(c.OID)
	}
}

func writeCommitData(cw *chunkWriter, l *CommitList) {
	var edgeIndex uint32
	for _, c := range l.commits {
		cw.bytes(c.Tree)

		p1, p2 := l.parentSlots(c, edgeIndex)
		cw.be32(p1.encode())
		cw.be32(p2.encode())
		if n := len(c.Parents); n > 2 {
			edgeIndex += uint32(n - 1)
		}

		// 高 2 位 + 低 32 位，更高的位被截断
		ts := uint64(c.Timestamp)
		cw.be32(uint32(ts>>32) & 0x3)
		cw.be32(uint32(ts))
	}
}

func writeLargeEdges(cw *chunkWriter, l *CommitList) {
	for _, c := range l.commits {
		for _, e := range l.edgesFor(c) {
			cw.be32(e.encode())
		}
	}
}

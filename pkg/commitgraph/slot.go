package commitgraph

// slotKind 区分父节点槽里存放的是什么
type slotKind uint8

const (
	slotNone     slotKind = iota // 没有这个父节点
	slotParent                   // 稠密 ID
	slotMissing                  // 父节点不在 graph 中 (浅克隆、残缺仓库)
	slotOverflow                 // EDGE 列表中的起始下标
)

// slot 是一个父节点槽的显式表示，只在写盘时压成 32 位
type slot struct {
	kind  slotKind
	value uint32
}

func noParent() slot               { return slot{kind: slotNone} }
func missingParent() slot          { return slot{kind: slotMissing} }
func parentAt(pos uint32) slot     { return slot{kind: slotParent, value: pos} }
func overflowAt(index uint32) slot { return slot{kind: slotOverflow, value: index} }

func (k slotKind) String() string { return slotKindNames[k] }

var slotKindNames = [...]string{
	slotNone:     "none",
	slotParent:   "parent",
	slotMissing:  "missing",
	slotOverflow: "overflow",
}

func (s slot) encode() uint32 {
	switch s.kind {
	case slotParent:
		return s.value
	case slotMissing:
		return parentMissing
	case slotOverflow:
		return overflowNeeded | s.value
	default:
		return parentNone
	}
}

// edge 是 EDGE 列表中的一项
type edge struct {
	slot
	last bool
}

func (e edge) encode() uint32 {
	v := e.slot.encode()
	if e.last {
		v |= lastEdge
	}
	return v
}

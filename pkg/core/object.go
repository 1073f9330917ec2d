package core

import "tensorvault/pkg/types"

// ObjectType 定义了 TensorVault 中的对象类型
type ObjectType string

const (
	TypeChunk  ObjectType = "chunk"  // 原始数据块 (L1)
	TypeTree   ObjectType = "tree"   // 目录树 (L3)
	TypeCommit ObjectType = "commit" // 版本快照 (L4)
)

// Object 是所有 Merkle DAG 节点的通用接口
type Object interface {
	// Type 返回对象类型
	Type() ObjectType

	// ID 返回对象的哈希值 (CID)
	// 注意：在对象被密封(Seal/Serialize)之前，这可能为空
	ID() types.Hash

	// Bytes 返回对象的序列化数据 (用于存储)
	Bytes() []byte
}

// typeHeader 只解码结构化对象的类型字段 "t"
type typeHeader struct {
	TypeVal ObjectType `cbor:"t"`
}

// PeekType 根据序列化数据判断对象类型
// Chunk 是原始字节，不是 CBOR Map；凡是无法识别为结构化对象的数据都归为 Chunk
func PeekType(data []byte) ObjectType {
	var h typeHeader
	if err := dm.Unmarshal(data, &h); err != nil {
		return TypeChunk
	}
	switch h.TypeVal {
	case TypeTree, TypeCommit:
		return h.TypeVal
	default:
		return TypeChunk
	}
}

package core

import (
	"fmt"
	"time"

	"tensorvault/pkg/types"
)

type Commit struct {
	hash     types.Hash `cbor:"-"`
	rawBytes []byte     `cbor:"-"`

	TypeVal ObjectType `cbor:"t"`

	TreeCid Link   `cbor:"th"`
	Parents []Link `cbor:"p"`

	Author  string `cbor:"a"`
	Message string `cbor:"m"`

	// Unix 秒，可能超过 32 位
	Timestamp int64 `cbor:"ts"`
}

// NewCommit 以当前时间创建 Commit
func NewCommit(treeHash types.Hash, parents []types.Hash, author, msg string) (*Commit, error) {
	return NewCommitAt(treeHash, parents, author, msg, time.Now().Unix())
}

// NewCommitAt 使用指定的时间戳创建 Commit (导入历史、测试需要确定性 Hash)
func NewCommitAt(treeHash types.Hash, parents []types.Hash, author, msg string, ts int64) (*Commit, error) {
	parentLinks := make([]Link, len(parents))
	for i, p := range parents {
		parentLinks[i] = NewLink(p)
	}

	c := &Commit{
		TypeVal:   TypeCommit,
		TreeCid:   NewLink(treeHash),
		Parents:   parentLinks,
		Author:    author,
		Message:   msg,
		Timestamp: ts,
	}

	h, b, err := CalculateHash(c)
	if err != nil {
		return nil, err
	}
	c.hash = h
	c.rawBytes = b
	return c, nil
}

// DecodeCommit 把存储中的原始数据还原为 Commit
// hash 是调用方读取时使用的 key，这里不重新计算
func DecodeCommit(hash types.Hash, data []byte) (*Commit, error) {
	var c Commit
	if err := DecodeObject(data, &c); err != nil {
		return nil, fmt.Errorf("object %s is not a valid commit: %w", hash, err)
	}
	if c.TypeVal != TypeCommit {
		return nil, fmt.Errorf("object %s is a %q, not a commit", hash, c.TypeVal)
	}
	c.hash = hash
	c.rawBytes = data
	return &c, nil
}

// ParentHashes 按原始顺序返回父节点 Hash
func (c *Commit) ParentHashes() []types.Hash {
	out := make([]types.Hash, len(c.Parents))
	for i, p := range c.Parents {
		out[i] = p.Hash
	}
	return out
}

func (c *Commit) Type() ObjectType { return TypeCommit }
func (c *Commit) ID() types.Hash   { return c.hash }
func (c *Commit) Bytes() []byte    { return c.rawBytes }

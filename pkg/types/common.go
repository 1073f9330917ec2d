// pkg/types/common.go
package types

import (
	"encoding/hex"
	"fmt"
)

// Hash 代表对象的唯一标识符 (SHA256 Hex String)
// 这是一个“值对象”，应当是不可变的。
type Hash string

func (h Hash) String() string { return string(h) }

// 验证 Hash 合法性
func (h Hash) IsZero() bool  { return h == "" }
func (h Hash) IsValid() bool { return len(h) == 64 } // 简单的长度检查

// Raw 返回 Hash 的二进制形式 (commit-graph 等二进制格式使用)
// 小写 Hex 的字典序与原始字节的无符号字典序一致
func (h Hash) Raw() ([]byte, error) {
	b, err := hex.DecodeString(string(h))
	if err != nil {
		return nil, fmt.Errorf("invalid hash %q: %w", string(h), err)
	}
	return b, nil
}

// HashFromRaw 把原始字节还原为 Hex Hash
func HashFromRaw(raw []byte) Hash {
	return Hash(hex.EncodeToString(raw))
}

type HashPrefix string

func (p HashPrefix) String() string { return string(p) }

package types

import (
	"fmt"
	"strings"
)

// ============================================================================
//                              Path - 规范路径
// ============================================================================

// PathSeparator 点分路径的分隔符
const PathSeparator = "."

// keySeparator 路径键的内部分隔符（不会出现在 JSON key 的常见用法中）
const keySeparator = "\x1f"

// Path 规范路径
//
// Path 是非空字符串段的有序序列，定位共享树中的一个节点。
// 空路径（RootPath）表示树根，只用于整树操作，永远不能绑定为 Reference。
//
// 点分形式（"foo.bar"）只在边界处接受，进入系统前由 ParsePath 规范化。
type Path []string

// RootPath 树根路径
var RootPath = Path{}

// ParsePath 解析点分路径
//
// 空字符串或含空段（如 "foo..bar"、".foo"）均返回 ErrInvalidPath。
//
// 示例：
//
//	p, err := types.ParsePath("foo.bar") // Path{"foo", "bar"}
func ParsePath(s string) (Path, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: empty path, must be in the format \"foo.bar\"", ErrInvalidPath)
	}
	return NewPath(strings.Split(s, PathSeparator)...)
}

// NewPath 从段列表创建路径
//
// 段列表为空或包含空段时返回 ErrInvalidPath。
// 返回的 Path 持有段的副本，调用方后续修改输入切片不影响结果。
func NewPath(segments ...string) (Path, error) {
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: path must have at least one level", ErrInvalidPath)
	}
	for i, seg := range segments {
		if seg == "" {
			return nil, fmt.Errorf("%w: empty segment at index %d", ErrInvalidPath, i)
		}
	}
	p := make(Path, len(segments))
	copy(p, segments)
	return p, nil
}

// MustParsePath 解析路径，失败时 panic
//
// 仅用于测试和常量路径。
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

// IsRoot 是否为树根
func (p Path) IsRoot() bool {
	return len(p) == 0
}

// String 返回点分形式，树根返回空字符串
func (p Path) String() string {
	return strings.Join(p, PathSeparator)
}

// Key 返回用于 map 索引的路径键
func (p Path) Key() string {
	return strings.Join(p, keySeparator)
}

// Clone 返回路径副本
func (p Path) Clone() Path {
	if p == nil {
		return Path{}
	}
	c := make(Path, len(p))
	copy(c, p)
	return c
}

// Child 返回追加段后的子路径（不修改 p）
func (p Path) Child(segments ...string) Path {
	c := make(Path, 0, len(p)+len(segments))
	c = append(c, p...)
	return append(c, segments...)
}

// Parent 返回父路径，树根的父路径仍是树根
func (p Path) Parent() Path {
	if len(p) == 0 {
		return RootPath
	}
	return p[:len(p)-1].Clone()
}

// Last 返回最后一段，树根返回空字符串
func (p Path) Last() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// Equal 判断两个路径是否相同
func (p Path) Equal(q Path) bool {
	if len(p) != len(q) {
		return false
	}
	for i := range p {
		if p[i] != q[i] {
			return false
		}
	}
	return true
}

// HasPrefix 判断 prefix 是否为 p 本身或 p 的祖先
//
// 树根是所有路径的前缀。
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i := range prefix {
		if p[i] != prefix[i] {
			return false
		}
	}
	return true
}

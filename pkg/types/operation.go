package types

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

// ============================================================================
//                              OpKind - 操作类型
// ============================================================================

// OpKind 操作类型
type OpKind string

const (
	// OpInsert 原先不存在，现在存在
	OpInsert OpKind = "insert"
	// OpUpdate 原先存在，现在存在且不同
	OpUpdate OpKind = "update"
	// OpDelete 原先存在，现在不存在
	OpDelete OpKind = "delete"
	// OpAny 订阅过滤器：匹配所有操作（data 订阅）
	OpAny OpKind = "data"
)

// Valid 是否为合法的操作类型（不含 OpAny）
func (k OpKind) Valid() bool {
	switch k {
	case OpInsert, OpUpdate, OpDelete:
		return true
	default:
		return false
	}
}

// ValidFilter 是否为合法的订阅过滤器
func (k OpKind) ValidFilter() bool {
	return k == OpAny || k.Valid()
}

// Matches 过滤器 k 是否匹配操作类型 op
func (k OpKind) Matches(op OpKind) bool {
	return k == OpAny || k == op
}

// String 返回字符串表示
func (k OpKind) String() string {
	return string(k)
}

// ParseOpKind 解析操作类型，"any" 与 "data" 均视为 OpAny
func ParseOpKind(s string) (OpKind, error) {
	switch s {
	case "insert":
		return OpInsert, nil
	case "update":
		return OpUpdate, nil
	case "delete":
		return OpDelete, nil
	case "data", "any":
		return OpAny, nil
	default:
		return "", fmt.Errorf("unknown operation kind %q", s)
	}
}

// ============================================================================
//                              Operation - 已分类的树变更
// ============================================================================

// Operation 已分类的树变更
//
// Value 在 delete 时为 nil，Previous 在 insert 时为 nil。
// ID 是引起该变更的写入 ID，可能为空（服务端或其他来源的变更）。
type Operation struct {
	Kind     OpKind
	Path     Path
	Value    *structpb.Value
	Previous *structpb.Value
	ID       string
}

// Classify 根据前后值分类
//
// 前后值相同（包括都不存在）时返回 false。
func Classify(prev, next *structpb.Value) (OpKind, bool) {
	switch {
	case prev == nil && next == nil:
		return "", false
	case prev == nil:
		return OpInsert, true
	case next == nil:
		return OpDelete, true
	case ValueEqual(prev, next):
		return "", false
	default:
		return OpUpdate, true
	}
}

// Interface 返回新值的 Go 表示（delete 时为 nil）
func (op *Operation) Interface() any {
	return ValueInterface(op.Value)
}

// PreviousInterface 返回旧值的 Go 表示（insert 时为 nil）
func (op *Operation) PreviousInterface() any {
	return ValueInterface(op.Previous)
}

// String 返回可读表示
func (op *Operation) String() string {
	return fmt.Sprintf("%s %s", op.Kind, op.Path)
}

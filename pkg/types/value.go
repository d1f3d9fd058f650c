package types

import (
	"fmt"

	json "github.com/goccy/go-json"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// ============================================================================
//                              TreeValue - 树节点值
// ============================================================================

// 树节点值统一使用 *structpb.Value 表示：
//   - 标量：null / number / string / bool
//   - 列表：ListValue（整体视为原子值，路径不进入列表内部）
//   - 映射：Struct（key 唯一）
//
// nil 指针表示"不存在"（absent），与 JSON null 区分。

// NewValue 将任意可 JSON 化的 Go 值转换为树节点值
//
// 已经是 *structpb.Value 的输入原样克隆返回。
// structpb 无法直接表示的类型（结构体、[]string、map[string]int 等）
// 先经过一次 JSON 往返再转换。
func NewValue(v any) (*structpb.Value, error) {
	if x, ok := v.(*structpb.Value); ok {
		if x == nil {
			return structpb.NewNullValue(), nil
		}
		return proto.Clone(x).(*structpb.Value), nil
	}

	if pv, err := structpb.NewValue(v); err == nil {
		return pv, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	pv, err := structpb.NewValue(generic)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return pv, nil
}

// ValueEqual 判断两个节点值是否相同（nil 表示不存在）
func ValueEqual(a, b *structpb.Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return proto.Equal(a, b)
}

// CloneValue 深拷贝节点值
func CloneValue(v *structpb.Value) *structpb.Value {
	if v == nil {
		return nil
	}
	return proto.Clone(v).(*structpb.Value)
}

// ValueInterface 将节点值转换为普通 Go 值
//
// 不存在时返回 nil；数字统一为 float64。
func ValueInterface(v *structpb.Value) any {
	if v == nil {
		return nil
	}
	return v.AsInterface()
}

// Fields 返回映射节点的子节点，非映射返回 nil
func Fields(v *structpb.Value) map[string]*structpb.Value {
	if v == nil {
		return nil
	}
	if s := v.GetStructValue(); s != nil {
		return s.GetFields()
	}
	return nil
}

// IsMap 是否为映射节点
func IsMap(v *structpb.Value) bool {
	if v == nil {
		return false
	}
	_, ok := v.GetKind().(*structpb.Value_StructValue)
	return ok
}

// Lookup 沿路径查找子节点
//
// 路径经过非映射节点或缺失的 key 时返回 nil（不存在）。
func Lookup(root *structpb.Value, path Path) *structpb.Value {
	cur := root
	for _, seg := range path {
		fields := Fields(cur)
		if fields == nil {
			return nil
		}
		next, ok := fields[seg]
		if !ok {
			return nil
		}
		cur = next
	}
	return cur
}

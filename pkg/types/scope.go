package types

// ============================================================================
//                              Scope - 订阅范围
// ============================================================================

// Scope 订阅范围
type Scope int

const (
	// ScopeSubtree 匹配路径本身及其所有后代（Reference 默认）
	ScopeSubtree Scope = iota
	// ScopeExact 只匹配完全相同的路径
	ScopeExact
	// ScopeWholeTree 匹配整棵树上的所有操作（根订阅）
	ScopeWholeTree
)

// String 返回字符串表示
func (s Scope) String() string {
	switch s {
	case ScopeSubtree:
		return "subtree"
	case ScopeExact:
		return "exact"
	case ScopeWholeTree:
		return "whole-tree"
	default:
		return "unknown"
	}
}

// SubscriptionSpec 订阅描述
type SubscriptionSpec struct {
	// Path 订阅路径（whole-tree 时忽略）
	Path Path
	// Scope 匹配范围
	Scope Scope
	// Filter 操作过滤器，OpAny 匹配所有操作
	Filter OpKind
	// Once 一次性订阅：首次匹配后自动移除
	Once bool
}

// Matches 判断订阅是否覆盖给定操作
func (s SubscriptionSpec) Matches(op *Operation) bool {
	if !s.Filter.Matches(op.Kind) {
		return false
	}
	switch s.Scope {
	case ScopeWholeTree:
		return true
	case ScopeExact:
		return op.Path.Equal(s.Path)
	case ScopeSubtree:
		return op.Path.HasPrefix(s.Path)
	default:
		return false
	}
}

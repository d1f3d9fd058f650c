package liquiddb

import (
	"context"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dep2p/go-liquiddb/pkg/protocol"
	"github.com/dep2p/go-liquiddb/pkg/types"
)

// ════════════════════════════════════════════════════════════════════════════
//                              Reference
// ════════════════════════════════════════════════════════════════════════════

// Reference 绑定到一个路径的轻量句柄
//
// Reference 不持有任何连接资源，可以随意创建与丢弃。
// 路径在创建时校验并固定，之后不可改变。
type Reference struct {
	db   *DB
	path types.Path
}

// Path 返回绑定路径的副本（整树引用返回空路径）
func (r *Reference) Path() Path {
	return r.path.Clone()
}

// Key 返回路径最后一段（整树引用返回空字符串）
func (r *Reference) Key() string {
	return r.path.Last()
}

// String 返回点分路径
func (r *Reference) String() string {
	return r.path.String()
}

// Child 返回相对点分路径处的子引用
func (r *Reference) Child(path string) (*Reference, error) {
	rel, err := types.ParsePath(path)
	if err != nil {
		return nil, err
	}
	return &Reference{db: r.db, path: r.path.Child(rel...)}, nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              读取
// ════════════════════════════════════════════════════════════════════════════

// Get 读取当前值，nil 表示不存在
//
// 已连接时向服务端查询；断线期间返回本地镜像中最近一次应用的值。
func (r *Reference) Get(ctx context.Context) (*structpb.Value, error) {
	return r.db.conn.Fetch(ctx, r.path)
}

// Value 读取当前值的 Go 表示
//
// 返回 (值, 是否存在, 错误)。映射为 map[string]any，列表为 []any，数字为 float64。
func (r *Reference) Value(ctx context.Context) (any, bool, error) {
	v, err := r.Get(ctx)
	if err != nil {
		return nil, false, err
	}
	return types.ValueInterface(v), v != nil, nil
}

// Cached 返回本地镜像中的值，不经过网络
func (r *Reference) Cached() *structpb.Value {
	return r.db.conn.Tree().Get(r.path)
}

// ════════════════════════════════════════════════════════════════════════════
//                              写入
// ════════════════════════════════════════════════════════════════════════════

// Set 写入值，服务端回显后返回
//
// 返回在本路径处分类出的操作（insert / update）；
// 值与当前相同时返回 nil。v 可以是任意可 JSON 化的 Go 值或 *structpb.Value。
// 断线期间写入排队，重连后重放；ctx 只限制等待时间，不撤回写入。
func (r *Reference) Set(ctx context.Context, v any) (*Operation, error) {
	val, err := types.NewValue(v)
	if err != nil {
		return nil, err
	}
	msg, err := protocol.NewSet("", r.path, val)
	if err != nil {
		return nil, err
	}
	return r.db.conn.Write(ctx, msg)
}

// Delete 删除路径处的子树，服务端回显后返回
//
// 返回 delete 操作（Previous 为被删除的值）；路径本不存在时返回 nil。
func (r *Reference) Delete(ctx context.Context) (*Operation, error) {
	return r.db.conn.Write(ctx, protocol.NewDelete("", r.path))
}

// ════════════════════════════════════════════════════════════════════════════
//                              订阅
// ════════════════════════════════════════════════════════════════════════════

// SubscribeOption 订阅选项
type SubscribeOption func(*types.SubscriptionSpec)

// Exact 只匹配引用路径本身的操作，不包括后代
func Exact() SubscribeOption {
	return func(s *types.SubscriptionSpec) {
		if s.Scope == types.ScopeSubtree {
			s.Scope = types.ScopeExact
		}
	}
}

// On 订阅路径上的操作
//
// 默认匹配路径本身及其所有后代（后代变更时回调收到的是后代路径上的操作）；
// 整树引用匹配所有操作。kind 为 OpAny 时不过滤操作类型。
//
// 回调按到达顺序在派发协程中执行，可以在回调中调用 Set / Get 或取消订阅。
func (r *Reference) On(kind OpKind, handler func(*Operation), opts ...SubscribeOption) (Unsubscribe, error) {
	return r.subscribe(kind, handler, false, opts)
}

// Once 一次性订阅：首次匹配后自动移除
//
// 即使两个匹配操作几乎同时到达，回调也只执行一次。
func (r *Reference) Once(kind OpKind, handler func(*Operation), opts ...SubscribeOption) (Unsubscribe, error) {
	return r.subscribe(kind, handler, true, opts)
}

func (r *Reference) subscribe(kind OpKind, handler func(*Operation), once bool, opts []SubscribeOption) (Unsubscribe, error) {
	if !kind.ValidFilter() {
		return nil, fmt.Errorf("%w: unknown operation kind %q", ErrInvalidOption, kind)
	}
	if handler == nil {
		return nil, fmt.Errorf("%w: nil handler", ErrInvalidOption)
	}

	spec := types.SubscriptionSpec{
		Path:   r.path.Clone(),
		Scope:  types.ScopeSubtree,
		Filter: kind,
		Once:   once,
	}
	if r.path.IsRoot() {
		spec.Scope = types.ScopeWholeTree
	}
	for _, opt := range opts {
		opt(&spec)
	}

	cancel := r.db.registry.Subscribe(spec, handler)
	return Unsubscribe(cancel), nil
}

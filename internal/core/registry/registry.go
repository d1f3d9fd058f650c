// Package registry 实现路径订阅表
//
// 订阅按路径键存储（整树订阅单独存放），分发时沿操作路径的每个前缀查找：
//   - subtree 订阅：在任意前缀处匹配（包括路径本身）
//   - exact 订阅：只在完整路径处匹配
//   - whole-tree 订阅：匹配所有操作
//
// 一次性订阅通过原子 CAS 认领，并在回调执行前移除，
// 两个并发操作不会让同一个一次性回调执行两次。
//
// 分发遍历的是匹配结果的快照，回调中订阅/取消订阅是安全的；
// 快照中已被取消的订阅不再调用。
package registry

import (
	"fmt"
	"sync"
	"sync/atomic"

	pkgif "github.com/dep2p/go-liquiddb/pkg/interfaces"
	"github.com/dep2p/go-liquiddb/pkg/lib/log"
	"github.com/dep2p/go-liquiddb/pkg/types"
)

var logger = log.Logger("core/registry")

// subscription 已注册的订阅
type subscription struct {
	id      uint64
	key     string
	spec    types.SubscriptionSpec
	handler pkgif.OperationHandler

	// fired 一次性订阅是否已被认领
	fired atomic.Bool
	// removed 已从订阅表移除
	removed atomic.Bool
}

// Registry 路径订阅表
type Registry struct {
	mu     sync.RWMutex
	byPath map[string][]*subscription
	whole  []*subscription
	nextID uint64
	count  int
}

var _ pkgif.PathRegistry = (*Registry)(nil)

// New 创建订阅表
func New() *Registry {
	return &Registry{
		byPath: make(map[string][]*subscription),
	}
}

// Subscribe 注册订阅
//
// Filter 为空时视为 OpAny。返回的取消函数可以重复调用，也可以在回调中调用。
func (r *Registry) Subscribe(spec types.SubscriptionSpec, handler pkgif.OperationHandler) func() {
	if handler == nil {
		panic("registry: nil handler")
	}
	if spec.Filter == "" {
		spec.Filter = types.OpAny
	}
	if !spec.Filter.ValidFilter() {
		panic(fmt.Sprintf("registry: invalid filter %q", spec.Filter))
	}
	spec.Path = spec.Path.Clone()

	r.mu.Lock()
	r.nextID++
	sub := &subscription{
		id:      r.nextID,
		key:     spec.Path.Key(),
		spec:    spec,
		handler: handler,
	}
	if spec.Scope == types.ScopeWholeTree {
		r.whole = append(r.whole, sub)
	} else {
		r.byPath[sub.key] = append(r.byPath[sub.key], sub)
	}
	r.count++
	r.mu.Unlock()

	logger.Debug("注册订阅",
		"path", spec.Path.String(),
		"scope", spec.Scope.String(),
		"filter", spec.Filter.String(),
		"once", spec.Once)

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(sub) })
	}
}

// Dispatch 分发操作，返回被调用的回调数量
func (r *Registry) Dispatch(op *types.Operation) int {
	matched := r.match(op)

	called := 0
	for _, sub := range matched {
		if sub.removed.Load() {
			continue
		}
		if sub.spec.Once {
			if !sub.fired.CompareAndSwap(false, true) {
				continue
			}
			r.remove(sub)
		}
		r.invoke(sub, op)
		called++
	}
	return called
}

// Len 返回当前订阅数量
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// match 在读锁内收集匹配的订阅快照
//
// 只查操作路径各前缀处的订阅，具体是否覆盖由 SubscriptionSpec.Matches 判定。
func (r *Registry) match(op *types.Operation) []*subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*subscription
	collect := func(subs []*subscription) {
		for _, sub := range subs {
			if sub.spec.Matches(op) {
				out = append(out, sub)
			}
		}
	}
	collect(r.whole)
	for i := 0; i <= len(op.Path); i++ {
		collect(r.byPath[op.Path[:i].Key()])
	}
	return out
}

// invoke 执行回调，恢复 panic
func (r *Registry) invoke(sub *subscription, op *types.Operation) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("订阅回调 panic",
				"path", sub.spec.Path.String(),
				"op", op.String(),
				"panic", rec)
		}
	}()
	sub.handler(op)
}

// remove 移除订阅（不存在时不做任何事）
func (r *Registry) remove(sub *subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sub.spec.Scope == types.ScopeWholeTree {
		if out, ok := without(r.whole, sub); ok {
			r.whole = out
			r.count--
			sub.removed.Store(true)
		}
		return
	}

	out, ok := without(r.byPath[sub.key], sub)
	if !ok {
		return
	}
	r.count--
	sub.removed.Store(true)
	if len(out) == 0 {
		delete(r.byPath, sub.key)
	} else {
		r.byPath[sub.key] = out
	}
}

// without 返回移除 sub 后的新切片（不修改原切片，保证快照稳定）
func without(subs []*subscription, sub *subscription) ([]*subscription, bool) {
	for i, s := range subs {
		if s.id == sub.id {
			out := make([]*subscription, 0, len(subs)-1)
			out = append(out, subs[:i]...)
			return append(out, subs[i+1:]...), true
		}
	}
	return subs, false
}

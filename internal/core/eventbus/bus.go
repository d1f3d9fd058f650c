// Package eventbus 实现事件总线
package eventbus

import (
	"errors"
	"reflect"
	"sync"
	"sync/atomic"

	pkgif "github.com/dep2p/go-liquiddb/pkg/interfaces"
	"github.com/dep2p/go-liquiddb/pkg/lib/log"
)

var logger = log.Logger("core/eventbus")

// ============================================================================
// 错误定义
// ============================================================================

var (
	// ErrClosed 事件总线已关闭
	ErrClosed = errors.New("eventbus closed")
	// ErrInvalidEventType 无效的事件类型
	ErrInvalidEventType = errors.New("invalid event type")
	// ErrNonPointerType 非指针类型
	ErrNonPointerType = errors.New("subscribe called with non-pointer type")
)

// defaultBufSize 默认订阅缓冲区
const defaultBufSize = 16

// ============================================================================
// Bus 实现
// ============================================================================

// Bus 事件总线
//
// 每个 DB 实例拥有独立的 Bus，承载连接生命周期事件。
// 订阅者缓冲区满时事件被丢弃（生命周期事件允许丢失中间状态），
// 丢弃数量通过 Dropped() 观察，并导出为 events_dropped_total 指标。
type Bus struct {
	mu     sync.RWMutex
	nodes  map[reflect.Type]*node
	closed bool

	dropped atomic.Int64
}

// node 事件类型节点
type node struct {
	lk        sync.Mutex
	typ       reflect.Type
	sinks     []*Subscription
	nEmitters atomic.Int32
	keepLast  bool
	last      interface{}
}

var _ pkgif.EventBus = (*Bus)(nil)

// NewBus 创建新的事件总线
func NewBus() *Bus {
	return &Bus{
		nodes: make(map[reflect.Type]*node),
	}
}

// BufSize 设置订阅缓冲区大小
func BufSize(size int) pkgif.SubscriptionOpt {
	return pkgif.BufSize(size)
}

// Stateful 设置发射器为有状态模式：新订阅者立即收到最后一个事件
func Stateful() pkgif.EmitterOpt {
	return pkgif.Stateful()
}

// elemType 校验事件类型参数并返回元素类型
func elemType(eventType interface{}) (reflect.Type, error) {
	if eventType == nil {
		return nil, ErrInvalidEventType
	}
	typ := reflect.TypeOf(eventType)
	if typ.Kind() != reflect.Ptr {
		return nil, ErrNonPointerType
	}
	return typ.Elem(), nil
}

// Subscribe 订阅事件
//
// eventType 必须是指针，例如 new(types.EvtConnected)；
// 收到的事件是值类型 types.EvtConnected。
func (b *Bus) Subscribe(eventType interface{}, opts ...pkgif.SubscriptionOpt) (pkgif.Subscription, error) {
	typ, err := elemType(eventType)
	if err != nil {
		return nil, err
	}

	settings := pkgif.SubscriptionSettings{Buffer: defaultBufSize}
	for _, opt := range opts {
		opt(&settings)
	}
	if settings.Buffer < 0 {
		settings.Buffer = 0
	}

	sub := &Subscription{
		bus: b,
		typ: typ,
		out: make(chan interface{}, settings.Buffer),
	}

	err = b.withNode(typ, func(n *node) {
		n.sinks = append(n.sinks, sub)
		if n.keepLast && n.last != nil {
			select {
			case sub.out <- n.last:
			default:
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// Emitter 获取发射器
func (b *Bus) Emitter(eventType interface{}, opts ...pkgif.EmitterOpt) (pkgif.Emitter, error) {
	typ, err := elemType(eventType)
	if err != nil {
		return nil, err
	}

	var settings pkgif.EmitterSettings
	for _, opt := range opts {
		opt(&settings)
	}

	var n *node
	err = b.withNode(typ, func(nd *node) {
		n = nd
		n.nEmitters.Add(1)
		if settings.Stateful {
			n.keepLast = true
		}
	})
	if err != nil {
		return nil, err
	}

	return &Emitter{bus: b, node: n, typ: typ}, nil
}

// Dropped 返回因订阅者缓冲区满而丢弃的事件总数
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Close 关闭事件总线
//
// 关闭所有订阅（订阅者的 range 循环随之退出），之后的 Subscribe/Emitter 返回 ErrClosed，
// 已有发射器的 Emit 成为空操作。
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	var subs []*Subscription
	for _, n := range b.nodes {
		n.lk.Lock()
		subs = append(subs, n.sinks...)
		n.sinks = nil
		n.lk.Unlock()
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.closeChannel()
	}
	return nil
}

// ============================================================================
// 内部方法
// ============================================================================

// withNode 在节点锁内执行操作，节点不存在时创建
func (b *Bus) withNode(typ reflect.Type, cb func(*node)) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}

	n, ok := b.nodes[typ]
	if !ok {
		n = &node{typ: typ}
		b.nodes[typ] = n
	}

	n.lk.Lock()
	b.mu.Unlock()

	cb(n)
	n.lk.Unlock()
	return nil
}

// tryDropNode 没有订阅者和发射器时删除节点
func (b *Bus) tryDropNode(typ reflect.Type) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n, ok := b.nodes[typ]
	if !ok {
		return
	}
	n.lk.Lock()
	idle := len(n.sinks) == 0 && n.nEmitters.Load() == 0
	n.lk.Unlock()
	if idle {
		delete(b.nodes, typ)
	}
}

// removeSub 移除订阅，返回是否确实移除
func (b *Bus) removeSub(sub *Subscription) bool {
	b.mu.Lock()
	n, ok := b.nodes[sub.typ]
	if !ok {
		b.mu.Unlock()
		return false
	}
	n.lk.Lock()
	b.mu.Unlock()

	removed := false
	for i, s := range n.sinks {
		if s == sub {
			n.sinks = append(n.sinks[:i], n.sinks[i+1:]...)
			removed = true
			break
		}
	}
	idle := len(n.sinks) == 0 && n.nEmitters.Load() == 0
	n.lk.Unlock()

	if idle {
		b.tryDropNode(sub.typ)
	}
	return removed
}

// emit 发射事件到所有订阅者（不阻塞）
func (n *node) emit(b *Bus, event interface{}) {
	n.lk.Lock()
	defer n.lk.Unlock()

	if n.keepLast {
		n.last = event
	}

	for _, sub := range n.sinks {
		select {
		case sub.out <- event:
		default:
			dropped := b.dropped.Add(1)
			// 每丢弃 100 个事件警告一次，避免日志泛滥
			if dropped%100 == 1 {
				logger.Warn("慢消费者检测",
					"dropped", dropped,
					"type", n.typ,
					"reason", "subscriber buffer full")
			}
		}
	}
}

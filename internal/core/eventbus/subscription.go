// Package eventbus 实现事件总线
package eventbus

import (
	"errors"
	"reflect"
	"sync"
	"sync/atomic"

	pkgif "github.com/dep2p/go-liquiddb/pkg/interfaces"
)

// ============================================================================
// Subscription 实现
// ============================================================================

// Subscription 订阅
type Subscription struct {
	bus       *Bus
	typ       reflect.Type
	out       chan interface{}
	closeOnce sync.Once
}

var _ pkgif.Subscription = (*Subscription)(nil)

// Out 返回事件通道，订阅关闭或总线关闭后通道被关闭
func (s *Subscription) Out() <-chan interface{} {
	return s.out
}

// Close 取消订阅，可以多次调用
func (s *Subscription) Close() error {
	if s.bus.removeSub(s) {
		s.closeChannel()
	}
	return nil
}

// closeChannel 关闭输出通道
//
// 调用前订阅必须已经从节点移除，之后不会再有发送。
func (s *Subscription) closeChannel() {
	s.closeOnce.Do(func() {
		close(s.out)
	})
}

// ============================================================================
// Emitter 实现
// ============================================================================

// Emitter 事件发射器
type Emitter struct {
	bus       *Bus
	node      *node
	typ       reflect.Type
	closed    atomic.Bool
	closeOnce sync.Once
}

var _ pkgif.Emitter = (*Emitter)(nil)

// Emit 发射事件
func (e *Emitter) Emit(event interface{}) error {
	if e.closed.Load() {
		return errors.New("emitter is closed")
	}
	if reflect.TypeOf(event) != e.typ {
		return ErrInvalidEventType
	}
	e.node.emit(e.bus, event)
	return nil
}

// Close 关闭发射器
func (e *Emitter) Close() error {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		if e.node.nEmitters.Add(-1) == 0 {
			e.bus.tryDropNode(e.typ)
		}
	})
	return nil
}

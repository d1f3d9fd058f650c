package liquiddb

import (
	"github.com/dep2p/go-liquiddb/pkg/types"
)

// ════════════════════════════════════════════════════════════════════════════
//                              类型别名
// ════════════════════════════════════════════════════════════════════════════

// Path 规范路径，见 types.Path
type Path = types.Path

// Operation 已分类的树变更，见 types.Operation
type Operation = types.Operation

// OpKind 操作类型 / 订阅过滤器
type OpKind = types.OpKind

// ConnectionState 连接状态
type ConnectionState = types.ConnectionState

// EvtConnected 握手完成事件
type EvtConnected = types.EvtConnected

// EvtDisconnected 会话丢失或关闭事件
type EvtDisconnected = types.EvtDisconnected

// 操作类型
const (
	OpInsert = types.OpInsert
	OpUpdate = types.OpUpdate
	OpDelete = types.OpDelete
	// OpAny 匹配所有操作（data 订阅）
	OpAny = types.OpAny
)

// 连接状态
const (
	StateDisconnected     = types.StateDisconnected
	StateConnecting       = types.StateConnecting
	StateConnected        = types.StateConnected
	StateHeartbeatTimeout = types.StateHeartbeatTimeout
	StateReconnecting     = types.StateReconnecting
	StateClosed           = types.StateClosed
)

// ParsePath 解析点分路径（"foo.bar"）
func ParsePath(s string) (Path, error) {
	return types.ParsePath(s)
}

// NewPath 从段列表创建路径
func NewPath(segments ...string) (Path, error) {
	return types.NewPath(segments...)
}

// Unsubscribe 取消订阅，可重复调用
type Unsubscribe func()

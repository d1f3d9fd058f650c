// Package types 定义 LiquidDB 公共类型
//
// 本文件定义生命周期事件类型。
package types

import (
	"time"
)

// ============================================================================
//                              Event - 事件接口
// ============================================================================

// Event 基础事件接口
type Event interface {
	// Type 返回事件类型
	Type() string

	// Timestamp 返回事件时间戳
	Timestamp() time.Time
}

// BaseEvent 基础事件实现
type BaseEvent struct {
	EventType string
	Time      time.Time
}

// Type 返回事件类型
func (e BaseEvent) Type() string {
	return e.EventType
}

// Timestamp 返回事件时间戳
func (e BaseEvent) Timestamp() time.Time {
	return e.Time
}

// NewBaseEvent 创建基础事件
func NewBaseEvent(eventType string, at time.Time) BaseEvent {
	return BaseEvent{
		EventType: eventType,
		Time:      at,
	}
}

// 事件类型常量
const (
	EventTypeConnected    = "connected"
	EventTypeDisconnected = "disconnected"
	EventTypeStateChanged = "state_changed"
)

// ============================================================================
//                              连接生命周期事件
// ============================================================================

// EvtConnected 握手完成事件
type EvtConnected struct {
	BaseEvent
	// Address 服务端地址
	Address string
	// Reconnect 是否为重连（首次连接为 false）
	Reconnect bool
}

// EvtDisconnected 会话丢失或关闭事件
type EvtDisconnected struct {
	BaseEvent
	// Address 服务端地址
	Address string
	// Reason 断开原因（显式 Close 时为 nil）
	Reason error
}

// EvtStateChanged 连接状态变化事件
type EvtStateChanged struct {
	BaseEvent
	From ConnectionState
	To   ConnectionState
}

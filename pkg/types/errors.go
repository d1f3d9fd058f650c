// Package types 定义 LiquidDB 的基础类型
//
// 本文件定义所有公共错误类型。
package types

import "errors"

// ============================================================================
//                              输入校验错误
// ============================================================================

var (
	// ErrInvalidPath 路径为空或格式错误（同步返回，不影响连接）
	ErrInvalidPath = errors.New("invalid path")

	// ErrInvalidValue 值无法表示为 JSON 树节点
	ErrInvalidValue = errors.New("invalid value")
)

// ============================================================================
//                              连接相关错误
// ============================================================================

var (
	// ErrTransport 底层通道失败（内部吸收，触发重连）
	ErrTransport = errors.New("transport error")

	// ErrHeartbeatTimeout 心跳超时（内部吸收，触发重连）
	ErrHeartbeatTimeout = errors.New("heartbeat timeout")

	// ErrHandshakeTimeout 就绪握手超时
	ErrHandshakeTimeout = errors.New("handshake timeout")

	// ErrNotConnected 显式 Close 之后、没有进行中的重连时发起操作
	ErrNotConnected = errors.New("not connected")

	// ErrReconnectExhausted 重连次数耗尽
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
)

// ============================================================================
//                              协议相关错误
// ============================================================================

var (
	// ErrProtocol 服务端消息格式错误（丢弃并记录日志）
	ErrProtocol = errors.New("protocol error")

	// ErrRejected 服务端拒绝了写入或读取
	ErrRejected = errors.New("rejected by server")
)

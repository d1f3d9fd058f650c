package liquiddb

import (
	"errors"

	"github.com/dep2p/go-liquiddb/pkg/types"
)

// 公共错误定义
//
// 与 pkg/types 中的定义相同，可直接用 errors.Is 判断。
var (
	// ────────────────────────────────────────────────────────────────────────
	// 输入校验错误（同步返回，不影响连接）
	// ────────────────────────────────────────────────────────────────────────

	// ErrInvalidPath 路径为空或格式错误
	ErrInvalidPath = types.ErrInvalidPath

	// ErrInvalidValue 值无法表示为树节点
	ErrInvalidValue = types.ErrInvalidValue

	// ErrInvalidOption 订阅参数非法
	ErrInvalidOption = errors.New("invalid option")

	// ────────────────────────────────────────────────────────────────────────
	// 连接错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrTransport 底层通道失败
	ErrTransport = types.ErrTransport

	// ErrHeartbeatTimeout 心跳超时
	ErrHeartbeatTimeout = types.ErrHeartbeatTimeout

	// ErrHandshakeTimeout 就绪握手超时
	ErrHandshakeTimeout = types.ErrHandshakeTimeout

	// ErrNotConnected 显式 Close 后、没有进行中的重连时发起操作
	ErrNotConnected = types.ErrNotConnected

	// ErrReconnectExhausted 重连次数耗尽
	ErrReconnectExhausted = types.ErrReconnectExhausted

	// ErrShutdown DB 已 Shutdown，不可再使用
	ErrShutdown = errors.New("db shut down")

	// ────────────────────────────────────────────────────────────────────────
	// 协议错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrProtocol 服务端消息格式错误
	ErrProtocol = types.ErrProtocol

	// ErrRejected 服务端拒绝了请求
	ErrRejected = types.ErrRejected
)

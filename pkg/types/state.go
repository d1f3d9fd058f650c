package types

// ============================================================================
//                              ConnectionState - 连接状态
// ============================================================================

// ConnectionState 连接状态
//
// 状态流转：
//
//	disconnected → connecting → connected → (heartbeat-timeout | closed)
//	    → reconnecting → connected ...
type ConnectionState int32

const (
	// StateDisconnected 未连接（初始状态，或重连次数耗尽）
	StateDisconnected ConnectionState = iota
	// StateConnecting 首次连接中
	StateConnecting
	// StateConnected 已连接（握手完成）
	StateConnected
	// StateHeartbeatTimeout 心跳超时，即将重连
	StateHeartbeatTimeout
	// StateReconnecting 重连中
	StateReconnecting
	// StateClosed 已显式关闭
	StateClosed
)

// String 返回字符串表示
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateHeartbeatTimeout:
		return "heartbeat-timeout"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// IsEstablishing 是否处于建立连接的过程中
func (s ConnectionState) IsEstablishing() bool {
	return s == StateConnecting || s == StateReconnecting || s == StateHeartbeatTimeout
}

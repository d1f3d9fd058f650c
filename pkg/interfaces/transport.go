// Package interfaces 定义 LiquidDB 公共接口
//
// 本文件定义 Dialer/Channel 接口，抽象底层双工消息通道。
package interfaces

import (
	"context"
)

// Dialer 定义通道拨号接口
//
// 默认实现基于 WebSocket，测试中可以替换为内存实现。
type Dialer interface {
	// Dial 拨号到指定地址，返回已建立的通道
	Dial(ctx context.Context, address string) (Channel, error)
}

// Channel 定义双工消息通道接口
//
// 一条消息对应一个完整的帧。Send 与 Receive 可以在不同 goroutine 中并发调用，
// 但同一方向上不允许并发。
type Channel interface {
	// Send 发送一条消息
	Send(ctx context.Context, data []byte) error

	// Receive 阻塞接收下一条消息
	//
	// 通道关闭或出错时返回错误；Close 会让阻塞中的 Receive 返回。
	Receive(ctx context.Context) ([]byte, error)

	// Close 关闭通道
	Close() error
}

// DialerFunc 函数适配器
type DialerFunc func(ctx context.Context, address string) (Channel, error)

// Dial 实现 Dialer
func (f DialerFunc) Dial(ctx context.Context, address string) (Channel, error) {
	return f(ctx, address)
}

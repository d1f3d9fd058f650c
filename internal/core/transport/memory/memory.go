// Package memory 实现进程内消息通道
//
// Listener 同时实现 pkgif.Dialer：每次 Dial 创建一对管道，
// 客户端一端返回给调用方，服务端一端通过 Accept 交给测试代码。
//
//	ln := memory.NewListener()
//	go func() {
//	    srv, _ := ln.Accept(ctx)
//	    srv.Send(ctx, readyFrame)
//	}()
//	ch, _ := ln.Dial(ctx, "mem://test")
package memory

import (
	"context"
	"fmt"
	"sync"

	pkgif "github.com/dep2p/go-liquiddb/pkg/interfaces"
	"github.com/dep2p/go-liquiddb/pkg/types"
)

// pipeBuffer 单向缓冲帧数
const pipeBuffer = 64

// Channel 管道的一端
type Channel struct {
	in   <-chan []byte
	out  chan<- []byte
	done chan struct{}
	once *sync.Once
}

var _ pkgif.Channel = (*Channel)(nil)

// Pipe 创建一对互联的通道，任意一端 Close 两端都关闭
func Pipe() (*Channel, *Channel) {
	ab := make(chan []byte, pipeBuffer)
	ba := make(chan []byte, pipeBuffer)
	done := make(chan struct{})
	once := &sync.Once{}

	a := &Channel{in: ba, out: ab, done: done, once: once}
	b := &Channel{in: ab, out: ba, done: done, once: once}
	return a, b
}

// Send 发送一帧（复制数据）
func (c *Channel) Send(ctx context.Context, data []byte) error {
	frame := append([]byte(nil), data...)
	select {
	case <-c.done:
		return fmt.Errorf("%w: pipe closed", types.ErrTransport)
	default:
	}
	select {
	case c.out <- frame:
		return nil
	case <-c.done:
		return fmt.Errorf("%w: pipe closed", types.ErrTransport)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive 接收一帧
//
// 关闭后仍会先取完已缓冲的帧。
func (c *Channel) Receive(ctx context.Context) ([]byte, error) {
	select {
	case data := <-c.in:
		return data, nil
	default:
	}
	select {
	case data := <-c.in:
		return data, nil
	case <-c.done:
		return nil, fmt.Errorf("%w: pipe closed", types.ErrTransport)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close 关闭管道两端
func (c *Channel) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

// Closed 返回关闭信号
func (c *Channel) Closed() <-chan struct{} {
	return c.done
}

// ============================================================================
//                              Listener
// ============================================================================

// Listener 内存拨号器 + 监听器
type Listener struct {
	mu       sync.Mutex
	accept   chan *Channel
	dialErr  error
	dialed   int
	closed   bool
	closedCh chan struct{}
}

var _ pkgif.Dialer = (*Listener)(nil)

// NewListener 创建监听器
func NewListener() *Listener {
	return &Listener{
		accept:   make(chan *Channel, 16),
		closedCh: make(chan struct{}),
	}
}

// FailDials 让后续 Dial 返回 err（nil 恢复正常）
func (l *Listener) FailDials(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dialErr = err
}

// Dialed 返回成功拨号次数
func (l *Listener) Dialed() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dialed
}

// Dial 实现 pkgif.Dialer
func (l *Listener) Dial(ctx context.Context, _ string) (pkgif.Channel, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, fmt.Errorf("%w: listener closed", types.ErrTransport)
	}
	if l.dialErr != nil {
		err := l.dialErr
		l.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", types.ErrTransport, err)
	}
	l.dialed++
	l.mu.Unlock()

	client, server := Pipe()
	select {
	case l.accept <- server:
		return client, nil
	case <-l.closedCh:
		return nil, fmt.Errorf("%w: listener closed", types.ErrTransport)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Accept 等待下一条入站管道
func (l *Listener) Accept(ctx context.Context) (*Channel, error) {
	select {
	case ch := <-l.accept:
		return ch, nil
	case <-l.closedCh:
		return nil, fmt.Errorf("%w: listener closed", types.ErrTransport)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close 关闭监听器
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.closedCh)
	}
	return nil
}

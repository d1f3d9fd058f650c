package connection

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"

	pkgif "github.com/dep2p/go-liquiddb/pkg/interfaces"
	"github.com/dep2p/go-liquiddb/pkg/protocol"
	"github.com/dep2p/go-liquiddb/pkg/types"
)

// pongFrame 预编码的心跳应答
var pongFrame = func() frame {
	data, err := protocol.Encode(protocol.NewPong())
	if err != nil {
		panic(err)
	}
	return frame{typ: protocol.TypePong, data: data}
}()

// session 一次握手成功后的通道生命周期
type session struct {
	ch     pkgif.Channel
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// watch 心跳看门狗，创建会话时即开始计时
	watch *clock.Timer
	// seen 最近一次收到消息的时间（UnixNano）
	seen atomic.Int64

	mu    sync.Mutex
	queue []frame
	wake  chan struct{}
}

func newSession(ch pkgif.Channel, clk clock.Clock, heartbeat time.Duration) *session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		ch:     ch,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		watch:  clk.Timer(heartbeat),
		wake:   make(chan struct{}, 1),
	}
	s.seen.Store(clk.Now().UnixNano())
	return s
}

// enqueue 追加到发送队列，保持调用顺序
func (s *session) enqueue(frames ...frame) {
	if len(frames) == 0 {
		return
	}
	s.mu.Lock()
	s.queue = append(s.queue, frames...)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *session) drain() []frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queue
	s.queue = nil
	return q
}

func (s *session) touch(now time.Time) {
	s.seen.Store(now.UnixNano())
}

func (s *session) lastSeen() time.Time {
	return time.Unix(0, s.seen.Load())
}

// stop 取消会话并关闭通道
func (s *session) stop() error {
	s.cancel()
	return s.ch.Close()
}

// ============================================================================
//                              会话协程
// ============================================================================

// runSession 运行读、写、心跳三个协程，任一退出即结束会话
func (c *Connection) runSession(s *session) {
	defer close(s.done)

	g, ctx := errgroup.WithContext(s.ctx)
	g.Go(func() error { return c.readLoop(ctx, s) })
	g.Go(func() error { return c.writeLoop(ctx, s) })
	g.Go(func() error { return c.watchdog(ctx, s) })

	err := g.Wait()
	_ = s.ch.Close()
	c.sessionEnded(s, err)
}

// readLoop 按到达顺序处理入站消息
func (c *Connection) readLoop(ctx context.Context, s *session) error {
	for {
		data, err := s.ch.Receive(ctx)
		if err != nil {
			return err
		}
		s.touch(c.clock.Now())

		msg, err := protocol.Decode(data)
		if err != nil {
			c.protocolError(err)
			continue
		}
		c.metrics.MessageReceived(string(msg.Type), len(data))

		if err := c.handle(s, msg); err != nil {
			c.protocolError(err)
		}
	}
}

// writeLoop 单一写协程，按入队顺序发送
func (c *Connection) writeLoop(ctx context.Context, s *session) error {
	for {
		for _, f := range s.drain() {
			if err := s.ch.Send(ctx, f.data); err != nil {
				return err
			}
			c.metrics.MessageSent(string(f.typ), len(f.data))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.wake:
		}
	}
}

// watchdog 在 HeartbeatTimeout 内没有任何入站消息时结束会话
func (c *Connection) watchdog(ctx context.Context, s *session) error {
	timeout := c.cfg.Connection.HeartbeatTimeout.Duration()
	defer s.watch.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.watch.C:
			idle := c.clock.Since(s.lastSeen())
			if idle < timeout {
				s.watch.Reset(timeout - idle)
				continue
			}
			c.metrics.HeartbeatTimeout()
			return fmt.Errorf("%w: no message for %s", types.ErrHeartbeatTimeout, idle)
		}
	}
}

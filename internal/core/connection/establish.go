package connection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"google.golang.org/protobuf/types/known/structpb"

	pkgif "github.com/dep2p/go-liquiddb/pkg/interfaces"
	"github.com/dep2p/go-liquiddb/pkg/protocol"
	"github.com/dep2p/go-liquiddb/pkg/types"
)

// attempt 一次连接尝试（可能包含多轮重试），并发调用方共享
type attempt struct {
	done chan struct{}
	err  error
}

func (a *attempt) finish(err error) {
	a.err = err
	close(a.done)
}

// wait 等待尝试完成
func (c *Connection) wait(ctx context.Context, a *attempt) error {
	select {
	case <-a.done:
		return a.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// establish 返回进行中的连接尝试，没有则启动一个
//
// retry 为 true 时按退避策略重试，否则只尝试一次。
func (c *Connection) establish(retry bool) *attempt {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = false
	return c.establishLocked(retry)
}

// establishLocked 同 establish，调用方持有 c.mu 且已确认连接未关闭
func (c *Connection) establishLocked(retry bool) *attempt {
	if c.att != nil {
		return c.att
	}
	a := &attempt{done: make(chan struct{})}
	if c.sess != nil {
		a.finish(nil)
		return a
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.att, c.attCancel = a, cancel
	if retry {
		c.setState(types.StateReconnecting)
	} else {
		c.setState(types.StateConnecting)
	}

	go c.runAttempt(ctx, cancel, a, retry)
	return a
}

func (c *Connection) runAttempt(ctx context.Context, cancel context.CancelFunc, a *attempt, retry bool) {
	defer cancel()

	var err error
	if retry {
		err = c.retry(ctx)
	} else {
		err = c.dialOnce(ctx)
	}

	c.mu.Lock()
	if c.att == a {
		c.att, c.attCancel = nil, nil
	}
	if err != nil && !c.closed && c.sess == nil {
		c.setState(types.StateDisconnected)
	}
	c.mu.Unlock()

	if err != nil {
		logger.Warn("连接失败", "address", c.address, "err", err)
	}
	a.finish(err)
}

// retry 按指数退避反复尝试直到成功、耗尽或被取消
func (c *Connection) retry(ctx context.Context) error {
	policy := c.backOff(ctx)

	attempts := 0
	operation := func() error {
		attempts++
		err := c.dialOnce(ctx)
		if errors.Is(err, errAborted) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		logger.Info("重连失败，等待重试", "address", c.address, "attempt", attempts, "wait", wait, "err", err)
	}

	err := backoff.RetryNotifyWithTimer(operation, policy, notify, &clockTimer{clock: c.clock})
	switch {
	case err == nil:
		c.metrics.Reconnected()
		return nil
	case errors.Is(err, errAborted):
		return err
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return fmt.Errorf("%w after %d attempts: %v", types.ErrReconnectExhausted, attempts, err)
	}
}

// backOff 根据重连配置构造退避策略
func (c *Connection) backOff(ctx context.Context) backoff.BackOff {
	rc := c.cfg.Reconnect
	exp := &backoff.ExponentialBackOff{
		InitialInterval:     rc.InitialBackoff.Duration(),
		RandomizationFactor: rc.RandomizationFactor,
		Multiplier:          rc.Multiplier,
		MaxInterval:         rc.MaxBackoff.Duration(),
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               c.clock,
	}
	exp.Reset()

	var b backoff.BackOff = exp
	if rc.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(rc.MaxAttempts-1))
	}
	return backoff.WithContext(b, ctx)
}

// dialOnce 拨号并完成握手，成功后激活会话
func (c *Connection) dialOnce(ctx context.Context) error {
	hctx, cancel := c.clock.WithTimeout(ctx, c.cfg.Connection.HandshakeTimeout.Duration())
	defer cancel()

	ch, err := c.dialer.Dial(hctx, c.address)
	if err != nil {
		return c.handshakeErr(ctx, hctx, err)
	}

	snapshot, err := c.handshake(hctx, ch)
	if err != nil {
		_ = ch.Close()
		return c.handshakeErr(ctx, hctx, err)
	}
	return c.activate(ch, snapshot)
}

// handshakeErr 把握手期限到期转换为 ErrHandshakeTimeout
func (c *Connection) handshakeErr(ctx, hctx context.Context, err error) error {
	if ctx.Err() == nil && errors.Is(hctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", types.ErrHandshakeTimeout, err)
	}
	return err
}

// handshake 等待 ready，期间应答 ping，其余消息丢弃
func (c *Connection) handshake(ctx context.Context, ch pkgif.Channel) (*structpb.Value, error) {
	for {
		data, err := ch.Receive(ctx)
		if err != nil {
			return nil, err
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			c.protocolError(err)
			continue
		}
		c.metrics.MessageReceived(string(msg.Type), len(data))

		switch msg.Type {
		case protocol.TypeReady:
			return msg.TreeValue()
		case protocol.TypePing:
			if err := ch.Send(ctx, pongFrame.data); err != nil {
				return nil, err
			}
			c.metrics.MessageSent(string(protocol.TypePong), len(pongFrame.data))
		default:
			logger.Debug("握手期间忽略消息", "type", string(msg.Type))
		}
	}
}

// activate 安装新会话：重置镜像、派发差异、重放待确认写入
func (c *Connection) activate(ch pkgif.Channel, snapshot *structpb.Value) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		_ = ch.Close()
		return errAborted
	}

	s := newSession(ch, c.clock, c.cfg.Connection.HeartbeatTimeout.Duration())

	c.disp.start()
	ops := c.tree.Reset(snapshot)
	c.disp.push(ops...)

	// 回显丢失的写入在重放时会被服务端以 ack 去重，结果取自重新同步差异
	c.pending.each(func(r *request) {
		r.resync = nil
		if op := ownOperation(ops, r.path); op != nil && types.ValueEqual(op.Value, r.want) {
			own := *op
			own.ID = r.id
			r.resync = &own
		}
	})

	replay := c.pending.frames()
	s.enqueue(replay...)

	reconnect := c.everConnected
	c.everConnected = true
	c.sess = s
	c.att, c.attCancel = nil, nil
	c.setState(types.StateConnected)

	go c.runSession(s)

	logger.Info("连接已就绪", "address", c.address, "resync", len(ops), "replay", len(replay))
	_ = c.emitConnected.Emit(types.EvtConnected{
		BaseEvent: types.NewBaseEvent(types.EventTypeConnected, c.clock.Now()),
		Address:   c.address,
		Reconnect: reconnect,
	})
	return nil
}

// ============================================================================
//                              clockTimer
// ============================================================================

// clockTimer 让退避等待使用注入的时钟
type clockTimer struct {
	clock clock.Clock
	timer *clock.Timer
}

var _ backoff.Timer = (*clockTimer)(nil)

func (t *clockTimer) Start(d time.Duration) {
	if t.timer == nil {
		t.timer = t.clock.Timer(d)
		return
	}
	t.timer.Reset(d)
}

func (t *clockTimer) Stop() {
	if t.timer != nil {
		t.timer.Stop()
	}
}

func (t *clockTimer) C() <-chan time.Time {
	return t.timer.C
}

package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/multierr"
	"golang.org/x/time/rate"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dep2p/go-liquiddb/config"
	"github.com/dep2p/go-liquiddb/internal/core/metrics"
	"github.com/dep2p/go-liquiddb/internal/core/store"
	pkgif "github.com/dep2p/go-liquiddb/pkg/interfaces"
	"github.com/dep2p/go-liquiddb/pkg/lib/log"
	"github.com/dep2p/go-liquiddb/pkg/protocol"
	"github.com/dep2p/go-liquiddb/pkg/types"
)

var logger = log.Logger("core/connection")

// appliedCacheSize 已应用写入 ID 的记忆容量
const appliedCacheSize = 4096

// ============================================================================
//                              错误定义
// ============================================================================

var (
	// ErrNotWrite 消息类型不是写入
	ErrNotWrite = errors.New("message is not a write")

	// errAborted 连接尝试期间被 Close
	errAborted = fmt.Errorf("%w: closed during connect", types.ErrNotConnected)
)

// ============================================================================
//                              Connection
// ============================================================================

// Deps Connection 依赖
type Deps struct {
	Config   *config.Config
	Dialer   pkgif.Dialer
	Tree     *store.Tree
	Registry pkgif.PathRegistry
	EventBus pkgif.EventBus
	// Metrics 可为 nil
	Metrics *metrics.Metrics
	// Clock 为 nil 时使用系统时钟
	Clock clock.Clock
}

// Connection 连接引擎
type Connection struct {
	cfg      *config.Config
	address  string
	dialer   pkgif.Dialer
	tree     *store.Tree
	registry pkgif.PathRegistry
	metrics  *metrics.Metrics
	clock    clock.Clock

	disp     *dispatcher
	applied  *lru.Cache[string, struct{}]
	protoLog rate.Sometimes

	emitConnected    pkgif.Emitter
	emitDisconnected pkgif.Emitter
	emitState        pkgif.Emitter

	state atomic.Int32

	mu            sync.Mutex
	closed        bool
	everConnected bool
	sess          *session
	att           *attempt
	attCancel     context.CancelFunc
	pending       *outbox
	gets          map[string]*request
}

// New 创建连接（不拨号）
func New(d Deps) (*Connection, error) {
	if d.Config == nil || d.Dialer == nil || d.Tree == nil || d.Registry == nil || d.EventBus == nil {
		return nil, errors.New("connection: missing dependency")
	}
	if err := d.Config.Validate(); err != nil {
		return nil, err
	}
	clk := d.Clock
	if clk == nil {
		clk = clock.New()
	}

	applied, err := lru.New[string, struct{}](appliedCacheSize)
	if err != nil {
		return nil, err
	}

	c := &Connection{
		cfg:      d.Config,
		address:  d.Config.Address,
		dialer:   d.Dialer,
		tree:     d.Tree,
		registry: d.Registry,
		metrics:  d.Metrics,
		clock:    clk,
		disp:     newDispatcher(d.Registry, d.Metrics),
		applied:  applied,
		protoLog: rate.Sometimes{First: 3, Interval: 10 * time.Second},
		pending:  newOutbox(),
		gets:     make(map[string]*request),
	}

	if c.emitConnected, err = d.EventBus.Emitter(new(types.EvtConnected)); err != nil {
		return nil, err
	}
	if c.emitDisconnected, err = d.EventBus.Emitter(new(types.EvtDisconnected)); err != nil {
		return nil, err
	}
	if c.emitState, err = d.EventBus.Emitter(new(types.EvtStateChanged), pkgif.Stateful()); err != nil {
		return nil, err
	}

	if err := c.metrics.WatchSubscriptions(d.Registry.Len); err != nil {
		return nil, err
	}
	c.metrics.SetState(types.StateDisconnected)
	return c, nil
}

// Address 返回服务端地址
func (c *Connection) Address() string {
	return c.address
}

// State 返回当前连接状态
func (c *Connection) State() types.ConnectionState {
	return types.ConnectionState(c.state.Load())
}

// Tree 返回树镜像
func (c *Connection) Tree() *store.Tree {
	return c.tree
}

// Pending 返回尚未确认的写入数
func (c *Connection) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending.Len()
}

// ============================================================================
//                              生命周期
// ============================================================================

// Connect 建立连接，握手完成（收到 ready）后返回
//
// 首次连接只尝试一次；曾经连接成功后 Connect 等同于 Reconnect。
// 已有连接尝试在进行时共享该尝试。ctx 只限制等待时间。
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	retry := c.everConnected
	c.mu.Unlock()
	return c.wait(ctx, c.establish(retry))
}

// Reconnect 拆除当前会话并按退避策略重新连接
//
// 也用于 Close 之后恢复连接。重试耗尽返回 types.ErrReconnectExhausted，
// 此时待确认写入仍保留在队列中。
func (c *Connection) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	s := c.sess
	if s != nil {
		c.sess = nil
		c.setState(types.StateReconnecting)
	}
	c.mu.Unlock()

	if s != nil {
		if err := s.stop(); err != nil {
			logger.Debug("关闭旧通道失败", "err", err)
		}
		select {
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return c.wait(ctx, c.establish(true))
}

// Close 关闭连接
//
// 取消会话、心跳看门狗和进行中的重连，等待它们退出并停止派发。
// 返回后不会再开始任何回调。待确认写入与尚未派发的操作保留，
// Reconnect 后分别重放和送达。
func (c *Connection) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	s, a, cancel := c.sess, c.att, c.attCancel
	c.sess = nil
	c.setState(types.StateClosed)
	c.mu.Unlock()

	var err error
	if cancel != nil {
		cancel()
	}
	if s != nil {
		err = multierr.Append(err, s.stop())
		err = multierr.Append(err, waitDone(ctx, s.done))
	}
	if a != nil {
		err = multierr.Append(err, waitDone(ctx, a.done))
	}
	c.disp.stop()

	logger.Info("连接已关闭", "address", c.address)
	return err
}

func waitDone(ctx context.Context, done <-chan struct{}) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ============================================================================
//                              读写
// ============================================================================

// Write 发送写入（set/delete）并等待服务端确认
//
// 返回在写入路径处分类出的操作；写入不改变树时返回 nil。
// 回显在断线中丢失、重放被服务端去重时，返回重连同步到的该路径操作。
// 断线期间写入排队，重连后按原顺序重放。ctx 取消只停止等待，不撤回写入。
func (c *Connection) Write(ctx context.Context, msg *protocol.Message) (*types.Operation, error) {
	if msg == nil || !msg.Type.IsWrite() {
		return nil, ErrNotWrite
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	data, err := protocol.Encode(msg)
	if err != nil {
		return nil, err
	}
	want, err := msg.TreeValue()
	if err != nil {
		return nil, err
	}
	req := newRequest(msg, data, c.clock.Now())
	req.want = want

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, types.ErrNotConnected
	}
	c.pending.push(req)
	n := c.pending.Len()
	if c.sess != nil {
		c.sess.enqueue(req.frame)
	}
	c.mu.Unlock()
	c.metrics.SetPendingWrites(n)

	select {
	case <-req.done:
		return req.op, req.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Fetch 读取路径处的值
//
// 已连接时向服务端查询；未连接或查询期间会话丢失时返回镜像中的值。
// 返回 nil 表示不存在。
func (c *Connection) Fetch(ctx context.Context, path types.Path) (*structpb.Value, error) {
	msg := protocol.NewGet(uuid.NewString(), path)
	data, err := protocol.Encode(msg)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, types.ErrNotConnected
	}
	s := c.sess
	if s == nil {
		c.mu.Unlock()
		return c.tree.Get(path), nil
	}
	req := newRequest(msg, data, c.clock.Now())
	c.gets[req.id] = req
	s.enqueue(req.frame)
	c.mu.Unlock()

	select {
	case <-req.done:
		return req.value, req.err
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.gets, req.id)
		c.mu.Unlock()
		return nil, ctx.Err()
	}
}

// ============================================================================
//                              内部
// ============================================================================

// setState 切换状态并发布事件，调用方持有 c.mu
func (c *Connection) setState(to types.ConnectionState) {
	from := types.ConnectionState(c.state.Swap(int32(to)))
	if from == to {
		return
	}
	c.metrics.SetState(to)
	logger.Debug("连接状态变化", "from", from.String(), "to", to.String())
	_ = c.emitState.Emit(types.EvtStateChanged{
		BaseEvent: types.NewBaseEvent(types.EventTypeStateChanged, c.clock.Now()),
		From:      from,
		To:        to,
	})
}

// protocolError 丢弃格式错误的消息：计数并限频记录
func (c *Connection) protocolError(err error) {
	c.metrics.ProtocolError()
	c.protoLog.Do(func() {
		logger.Warn("丢弃格式错误的服务端消息", "address", c.address, "err", err)
	})
}

// sessionEnded 会话结束后的清理与自动重连
//
// 断线事件与自动重连都在 c.mu 内完成：事件先于新尝试的状态变化，
// 且与 Close 互斥，关闭后不会再被重新拉起。
func (c *Connection) sessionEnded(s *session, err error) {
	c.mu.Lock()
	current := c.sess == s
	if current {
		c.sess = nil
	}
	gets := c.gets
	c.gets = make(map[string]*request)

	var reason error
	live := current && !c.closed
	if live {
		reason = err
		if errors.Is(err, types.ErrHeartbeatTimeout) {
			c.setState(types.StateHeartbeatTimeout)
		}
	}
	_ = c.emitDisconnected.Emit(types.EvtDisconnected{
		BaseEvent: types.NewBaseEvent(types.EventTypeDisconnected, c.clock.Now()),
		Address:   c.address,
		Reason:    reason,
	})
	if live {
		if c.cfg.Reconnect.Enabled {
			c.establishLocked(true)
		} else {
			c.setState(types.StateDisconnected)
		}
	}
	c.mu.Unlock()

	// 未完成的读取用镜像应答
	for _, r := range gets {
		r.resolve(nil, c.tree.Get(r.path), nil)
	}

	if reason != nil {
		logger.Warn("会话丢失", "address", c.address, "err", reason)
	} else {
		logger.Debug("会话结束", "address", c.address)
	}
}

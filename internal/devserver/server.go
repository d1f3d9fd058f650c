// Package devserver 提供内存中的开发用树服务端
//
// 只用于本地调试和测试：没有持久化、没有认证，并发写入按到达顺序生效。
//
// 协议行为：
//   - 连接建立后发送 ready（整树快照），之后按服务端顺序广播 event
//   - 写入按 ID 去重，重复写入只向写入方回 ack
//   - 不改变树的写入只向写入方回 ack，不广播
//   - 按 PingInterval 周期发送 ping
package devserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	lru "github.com/hashicorp/golang-lru/v2"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dep2p/go-liquiddb/internal/core/store"
	"github.com/dep2p/go-liquiddb/pkg/lib/log"
	"github.com/dep2p/go-liquiddb/pkg/protocol"
	"github.com/dep2p/go-liquiddb/pkg/types"
)

var logger = log.Logger("devserver")

// sendBuffer 每个连接的发送缓冲，写满视为慢消费者并断开
const sendBuffer = 1024

// Config 开发服务端配置
type Config struct {
	// PingInterval 心跳间隔，0 表示不发送 ping
	PingInterval time.Duration
	// DedupSize 记忆的写入 ID 数量
	DedupSize int
	// ReadLimit 单条消息最大字节数
	ReadLimit int64
	// Clock 为 nil 时使用系统时钟
	Clock clock.Clock
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		PingInterval: 5 * time.Second,
		DedupSize:    65536,
		ReadLimit:    16 << 20,
	}
}

// ============================================================================
//                              Server
// ============================================================================

// Server 开发服务端，实现 http.Handler
type Server struct {
	cfg      Config
	clock    clock.Clock
	upgrader websocket.Upgrader

	// mu 串行化变更与广播，保证所有连接看到相同顺序
	mu       sync.Mutex
	tree     *store.Tree
	dedup    *lru.Cache[string, struct{}]
	conns    map[*conn]struct{}
	gate     chan struct{}
	rejected map[string]string

	pingsOff atomic.Bool
	writes   atomic.Int64
	dupes    atomic.Int64

	test *httptest.Server
}

// New 创建服务端
func New(cfg Config) *Server {
	if cfg.DedupSize <= 0 {
		cfg.DedupSize = DefaultConfig().DedupSize
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	dedup, err := lru.New[string, struct{}](cfg.DedupSize)
	if err != nil {
		// 只有 size <= 0 时返回错误
		panic(err)
	}
	return &Server{
		cfg:   cfg,
		clock: cfg.Clock,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		tree:     store.New(),
		dedup:    dedup,
		conns:    make(map[*conn]struct{}),
		rejected: make(map[string]string),
	}
}

// NewTest 创建并在随机端口启动服务端
func NewTest(cfg Config) *Server {
	s := New(cfg)
	s.test = httptest.NewServer(s)
	return s
}

// URL 返回 NewTest 启动的服务端的 WebSocket 地址
func (s *Server) URL() string {
	if s.test == nil {
		return ""
	}
	return "ws" + strings.TrimPrefix(s.test.URL, "http") + "/db"
}

// Close 断开所有连接并停止 NewTest 启动的监听
func (s *Server) Close() {
	s.ReleaseReady()
	s.DropConnections()
	if s.test != nil {
		s.test.Close()
	}
}

// ============================================================================
//                              测试控制
// ============================================================================

// HoldReady 让之后的新连接暂不收到 ready，直到 ReleaseReady
func (s *Server) HoldReady() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gate == nil {
		s.gate = make(chan struct{})
	}
}

// ReleaseReady 放行等待 ready 的连接
func (s *Server) ReleaseReady() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gate != nil {
		close(s.gate)
		s.gate = nil
	}
}

// SuppressPings 暂停或恢复 ping
func (s *Server) SuppressPings(off bool) {
	s.pingsOff.Store(off)
}

// Reject 拒绝之后落在 path 子树内的写入
func (s *Server) Reject(path types.Path, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejected[path.Key()] = reason
}

// DropConnections 强制断开所有连接（模拟传输故障）
func (s *Server) DropConnections() {
	s.mu.Lock()
	conns := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
}

// Connections 返回已完成握手的连接数
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Value 返回服务端树中 path 处的值
func (s *Server) Value(path types.Path) *structpb.Value {
	return s.tree.Get(path)
}

// Writes 返回已应用的写入数（不含去重的重复写入）
func (s *Server) Writes() int64 {
	return s.writes.Load()
}

// Duplicates 返回被去重的写入数
func (s *Server) Duplicates() int64 {
	return s.dupes.Load()
}

// ============================================================================
//                              连接处理
// ============================================================================

// conn 一个客户端连接
type conn struct {
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
	srv  *Server
}

func (c *conn) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.Close()
		c.srv.mu.Lock()
		delete(c.srv.conns, c)
		c.srv.mu.Unlock()
	})
}

// post 非阻塞入队，缓冲满时断开连接
func (c *conn) post(data []byte) {
	select {
	case c.send <- data:
	case <-c.done:
	default:
		logger.Warn("客户端消费过慢，断开连接")
		go c.close()
	}
}

func (c *conn) postMessage(m *protocol.Message) {
	data, err := protocol.Encode(m)
	if err != nil {
		logger.Error("编码消息失败", "type", string(m.Type), "err", err)
		return
	}
	c.post(data)
}

// ServeHTTP 升级为 WebSocket 并服务该连接
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Debug("升级 WebSocket 失败", "err", err)
		return
	}
	if s.cfg.ReadLimit > 0 {
		ws.SetReadLimit(s.cfg.ReadLimit)
	}

	c := &conn{
		ws:   ws,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
		srv:  s,
	}
	defer c.close()

	go s.writeLoop(c)

	if !s.waitGate(r.Context(), c) {
		return
	}
	if err := s.register(c); err != nil {
		logger.Error("发送 ready 失败", "err", err)
		return
	}
	logger.Debug("客户端已连接", "remote", r.RemoteAddr)

	s.readLoop(c)
}

func (s *Server) waitGate(ctx context.Context, c *conn) bool {
	s.mu.Lock()
	gate := s.gate
	s.mu.Unlock()
	if gate == nil {
		return true
	}
	select {
	case <-gate:
		return true
	case <-c.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// register 在同一临界区内取快照并加入广播集合，保证不漏事件
func (s *Server) register(c *conn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ready, err := protocol.NewReady(s.tree.Snapshot())
	if err != nil {
		return err
	}
	c.postMessage(ready)
	s.conns[c] = struct{}{}
	return nil
}

func (s *Server) writeLoop(c *conn) {
	var tick <-chan time.Time
	if s.cfg.PingInterval > 0 {
		t := s.clock.Ticker(s.cfg.PingInterval)
		defer t.Stop()
		tick = t.C
	}
	ping, _ := protocol.Encode(protocol.NewPing())

	for {
		var data []byte
		select {
		case <-c.done:
			return
		case data = <-c.send:
		case <-tick:
			if s.pingsOff.Load() {
				continue
			}
			data = ping
		}
		_ = c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
			c.close()
			return
		}
	}
}

func (s *Server) readLoop(c *conn) {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if !errors.Is(err, websocket.ErrCloseSent) {
				logger.Debug("客户端断开", "err", err)
			}
			return
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			logger.Warn("丢弃格式错误的客户端消息", "err", err)
			continue
		}
		s.handle(c, msg)
	}
}

func (s *Server) handle(c *conn, msg *protocol.Message) {
	switch msg.Type {
	case protocol.TypePong:
	case protocol.TypeSet, protocol.TypeDelete:
		s.write(c, msg)
	case protocol.TypeGet:
		reply, err := protocol.NewValueReply(msg.ID, msg.TreePath(), s.tree.Get(msg.TreePath()))
		if err != nil {
			c.postMessage(protocol.NewError(msg.ID, msg.TreePath(), err.Error()))
			return
		}
		c.postMessage(reply)
	default:
		if msg.ID != "" {
			c.postMessage(protocol.NewError(msg.ID, msg.TreePath(), "unsupported message type"))
		}
	}
}

// write 应用写入并广播
func (s *Server) write(c *conn, msg *protocol.Message) {
	path := msg.TreePath()
	value, err := msg.TreeValue()
	if err != nil {
		c.postMessage(protocol.NewError(msg.ID, path, err.Error()))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.ID != "" {
		if s.dedup.Contains(msg.ID) {
			s.dupes.Add(1)
			c.postMessage(protocol.NewAck(msg.ID, path))
			return
		}
	}
	if reason, ok := s.rejectedLocked(path); ok {
		c.postMessage(protocol.NewError(msg.ID, path, reason))
		return
	}
	if msg.ID != "" {
		s.dedup.Add(msg.ID, struct{}{})
	}

	// 写入方已在广播集合中，会收到自己的回显
	if !s.applyLocked(path, value, msg.ID) {
		c.postMessage(protocol.NewAck(msg.ID, path))
	}
}

// applyLocked 应用变更并广播，树未改变时返回 false
func (s *Server) applyLocked(path types.Path, value *structpb.Value, id string) bool {
	prev := s.tree.Get(path)
	kind, changed := types.Classify(prev, value)
	if !changed {
		return false
	}
	s.tree.Apply(store.Mutation{Path: path, Value: value, ID: id})
	s.writes.Add(1)

	var data []byte
	event, err := protocol.NewEvent(id, path, kind, value)
	if err == nil {
		data, err = protocol.Encode(event)
	}
	if err != nil {
		logger.Error("编码事件失败", "err", err)
		return true
	}
	for c := range s.conns {
		c.post(data)
	}
	return true
}

// Set 服务端直接写入并广播（不经过任何客户端）
func (s *Server) Set(path types.Path, v *structpb.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyLocked(path, v, "")
}

// Delete 服务端直接删除并广播
func (s *Server) Delete(path types.Path) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyLocked(path, nil, "")
}

func (s *Server) rejectedLocked(path types.Path) (string, bool) {
	for i := len(path); i >= 0; i-- {
		if reason, ok := s.rejected[path[:i].Key()]; ok {
			return reason, true
		}
	}
	return "", false
}

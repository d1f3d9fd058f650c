package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	pkgif "github.com/dep2p/go-liquiddb/pkg/interfaces"
	"github.com/dep2p/go-liquiddb/pkg/lib/log"
	"github.com/dep2p/go-liquiddb/pkg/types"
)

var logger = log.Logger("core/transport/websocket")

// closeGrace 发送关闭帧的等待上限
const closeGrace = time.Second

// Config WebSocket 通道配置
type Config struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadLimit        int64
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 5 * time.Second,
		WriteTimeout:     5 * time.Second,
		ReadLimit:        16 << 20,
	}
}

// ============================================================================
//                              Dialer
// ============================================================================

// Dialer WebSocket 拨号器
type Dialer struct {
	cfg    Config
	dialer *websocket.Dialer
	header http.Header
}

var _ pkgif.Dialer = (*Dialer)(nil)

// NewDialer 创建拨号器
func NewDialer(cfg Config) *Dialer {
	return &Dialer{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
	}
}

// WithHeader 设置握手请求头（返回新的 Dialer）
func (d *Dialer) WithHeader(h http.Header) *Dialer {
	cp := *d
	cp.header = h.Clone()
	return &cp
}

// Dial 拨号到服务端
func (d *Dialer) Dial(ctx context.Context, address string) (pkgif.Channel, error) {
	conn, resp, err := d.dialer.DialContext(ctx, address, d.header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: dial %s: %v (status %d)", types.ErrTransport, address, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: dial %s: %v", types.ErrTransport, address, err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	logger.Debug("WebSocket 已连接", "address", address)
	return NewChannel(conn, d.cfg), nil
}

// ============================================================================
//                              Channel
// ============================================================================

// Channel WebSocket 消息通道
type Channel struct {
	conn *websocket.Conn
	cfg  Config

	writeMu   sync.Mutex
	readMu    sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

var _ pkgif.Channel = (*Channel)(nil)

// NewChannel 包装已建立的连接（服务端也可使用）
func NewChannel(conn *websocket.Conn, cfg Config) *Channel {
	if cfg.ReadLimit > 0 {
		conn.SetReadLimit(cfg.ReadLimit)
	}
	return &Channel{
		conn:   conn,
		cfg:    cfg,
		closed: make(chan struct{}),
	}
}

// Send 发送一个文本帧
func (c *Channel) Send(ctx context.Context, data []byte) error {
	select {
	case <-c.closed:
		return fmt.Errorf("%w: channel closed", types.ErrTransport)
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Time{}
	if c.cfg.WriteTimeout > 0 {
		deadline = time.Now().Add(c.cfg.WriteTimeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("%w: %v", types.ErrTransport, err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: write: %v", types.ErrTransport, err)
	}
	return nil
}

// Receive 阻塞读取下一个数据帧
func (c *Channel) Receive(ctx context.Context) ([]byte, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	// ctx 取消时关闭连接以打断阻塞读
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, fmt.Errorf("%w: closed by peer", types.ErrTransport)
			}
			return nil, fmt.Errorf("%w: read: %v", types.ErrTransport, err)
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		return data, nil
	}
}

// Close 发送关闭帧并关闭连接，可以重复调用
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
		if cerr := c.conn.Close(); cerr != nil && !errors.Is(cerr, websocket.ErrCloseSent) {
			err = cerr
		}
	})
	return err
}

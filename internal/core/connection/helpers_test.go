package connection

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dep2p/go-liquiddb/config"
	"github.com/dep2p/go-liquiddb/internal/core/eventbus"
	"github.com/dep2p/go-liquiddb/internal/core/metrics"
	"github.com/dep2p/go-liquiddb/internal/core/registry"
	"github.com/dep2p/go-liquiddb/internal/core/store"
	"github.com/dep2p/go-liquiddb/internal/core/transport/memory"
	"github.com/dep2p/go-liquiddb/pkg/lib/log"
	pkgif "github.com/dep2p/go-liquiddb/pkg/interfaces"
	"github.com/dep2p/go-liquiddb/pkg/protocol"
	"github.com/dep2p/go-liquiddb/pkg/types"
)

const waitFor = 3 * time.Second

type harness struct {
	conn    *Connection
	reg     *registry.Registry
	bus     *eventbus.Bus
	metrics *metrics.Metrics
}

func testConfig(address string) *config.Config {
	cfg := config.NewConfig()
	cfg.Address = address
	cfg.Reconnect.InitialBackoff = config.Duration(10 * time.Millisecond)
	cfg.Reconnect.MaxBackoff = config.Duration(50 * time.Millisecond)
	cfg.Reconnect.RandomizationFactor = 0
	return cfg
}

func newHarness(t *testing.T, dialer pkgif.Dialer, cfg *config.Config, clk clock.Clock) *harness {
	t.Helper()
	m, err := metrics.New(cfg.Metrics, nil, "test")
	require.NoError(t, err)

	h := &harness{
		reg:     registry.New(),
		bus:     eventbus.NewBus(),
		metrics: m,
	}
	h.conn, err = New(Deps{
		Config:   cfg,
		Dialer:   dialer,
		Tree:     store.New(),
		Registry: h.reg,
		EventBus: h.bus,
		Metrics:  m,
		Clock:    clk,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		_ = h.conn.Close(ctx)
	})
	return h
}

// recorder 收集回调收到的操作
type recorder struct {
	mu  sync.Mutex
	ops []*types.Operation
}

func (r *recorder) handle(op *types.Operation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, op)
}

func (r *recorder) list() []*types.Operation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*types.Operation(nil), r.ops...)
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ops)
}

// states 订阅状态变化
func states(t *testing.T, bus *eventbus.Bus) <-chan types.ConnectionState {
	t.Helper()
	sub, err := bus.Subscribe(new(types.EvtStateChanged), eventbus.BufSize(128))
	require.NoError(t, err)
	t.Cleanup(func() { sub.Close() })

	out := make(chan types.ConnectionState, 128)
	go func() {
		defer close(out)
		for e := range sub.Out() {
			out <- e.(types.EvtStateChanged).To
		}
	}()
	return out
}

// waitState 等待出现指定状态
func waitState(t *testing.T, ch <-chan types.ConnectionState, want types.ConnectionState) {
	t.Helper()
	deadline := time.After(waitFor)
	for {
		select {
		case s, ok := <-ch:
			require.True(t, ok, "state stream closed before %s", want)
			if s == want {
				return
			}
		case <-deadline:
			t.Fatalf("state %s not reached", want)
		}
	}
}

func setMsg(t *testing.T, path string, v any) *protocol.Message {
	t.Helper()
	val, err := types.NewValue(v)
	require.NoError(t, err)
	m, err := protocol.NewSet("", types.MustParsePath(path), val)
	require.NoError(t, err)
	return m
}

// ============================================================================
//                              脚本化服务端（内存通道）
// ============================================================================

func accept(t *testing.T, ln *memory.Listener) *memory.Channel {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	ch, err := ln.Accept(ctx)
	require.NoError(t, err)
	return ch
}

func acceptReady(t *testing.T, ln *memory.Listener, snapshot *structpb.Value) *memory.Channel {
	t.Helper()
	ch := accept(t, ln)
	ready, err := protocol.NewReady(snapshot)
	require.NoError(t, err)
	send(t, ch, ready)
	return ch
}

func send(t *testing.T, ch *memory.Channel, m *protocol.Message) {
	t.Helper()
	data, err := protocol.Encode(m)
	require.NoError(t, err)
	require.NoError(t, ch.Send(context.Background(), data))
}

func recv(t *testing.T, ch *memory.Channel) *protocol.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	data, err := ch.Receive(ctx)
	require.NoError(t, err)
	m, err := protocol.Decode(data)
	require.NoError(t, err)
	return m
}

// connectMem 连接到脚本化服务端
func connectMem(t *testing.T, h *harness, ln *memory.Listener) *memory.Channel {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- h.conn.Connect(context.Background()) }()
	ch := acceptReady(t, ln, nil)
	require.NoError(t, <-errCh)
	return ch
}

// ============================================================================
//                              日志挂起
// ============================================================================

// gateHandler 第一次输出 msg 时挂起调用方，直到 release 关闭
type gateHandler struct {
	slog.Handler
	msg     string
	once    *sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gateHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Message == g.msg {
		first := false
		g.once.Do(func() {
			first = true
			close(g.entered)
		})
		if first {
			<-g.release
		}
	}
	return g.Handler.Handle(ctx, r)
}

func (g *gateHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	cp := *g
	cp.Handler = g.Handler.WithAttrs(attrs)
	return &cp
}

func (g *gateHandler) WithGroup(name string) slog.Handler {
	cp := *g
	cp.Handler = g.Handler.WithGroup(name)
	return &cp
}

// holdLog 在日志 msg 处挂起输出它的 goroutine，返回进入通知与放行函数
func holdLog(t *testing.T, msg string) (<-chan struct{}, func()) {
	t.Helper()
	g := &gateHandler{
		Handler: slog.NewTextHandler(io.Discard, nil),
		msg:     msg,
		once:    new(sync.Once),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	prev := slog.Default()
	log.SetDefault(slog.New(g))

	var once sync.Once
	release := func() { once.Do(func() { close(g.release) }) }
	t.Cleanup(func() {
		release()
		log.SetDefault(prev)
	})
	return g.entered, release
}

package connection

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dep2p/go-liquiddb/internal/core/transport/memory"
	"github.com/dep2p/go-liquiddb/pkg/protocol"
	"github.com/dep2p/go-liquiddb/pkg/types"
)

const memAddr = "ws://memory/db"

// TestSession_PingPong 测试 ping 应答
func TestSession_PingPong(t *testing.T) {
	ln := memory.NewListener()
	h := newHarness(t, ln, testConfig(memAddr), clock.New())
	srv := connectMem(t, h, ln)

	send(t, srv, protocol.NewPing())
	assert.Equal(t, protocol.TypePong, recv(t, srv).Type)
}

// TestSession_HandshakeAnswersPing 测试握手期间应答 ping
func TestSession_HandshakeAnswersPing(t *testing.T) {
	ln := memory.NewListener()
	h := newHarness(t, ln, testConfig(memAddr), clock.New())

	errCh := make(chan error, 1)
	go func() { errCh <- h.conn.Connect(context.Background()) }()

	srv := accept(t, ln)
	send(t, srv, protocol.NewPing())
	assert.Equal(t, protocol.TypePong, recv(t, srv).Type)
	assert.Equal(t, types.StateConnecting, h.conn.State())

	ready, err := protocol.NewReady(nil)
	require.NoError(t, err)
	send(t, srv, ready)
	require.NoError(t, <-errCh)
	assert.Equal(t, types.StateConnected, h.conn.State())
}

// TestSession_HandshakeTimeout 测试握手超时
func TestSession_HandshakeTimeout(t *testing.T) {
	mock := clock.NewMock()
	ln := memory.NewListener()
	h := newHarness(t, ln, testConfig(memAddr), mock)

	errCh := make(chan error, 1)
	go func() { errCh <- h.conn.Connect(context.Background()) }()

	accept(t, ln)
	mock.Add(h.conn.cfg.Connection.HandshakeTimeout.Duration())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, types.ErrHandshakeTimeout)
	case <-time.After(waitFor):
		t.Fatal("handshake did not time out")
	}
	assert.Equal(t, types.StateDisconnected, h.conn.State())
}

// TestSession_HeartbeatTimeout 测试心跳超时触发自动重连
func TestSession_HeartbeatTimeout(t *testing.T) {
	mock := clock.NewMock()
	ln := memory.NewListener()
	h := newHarness(t, ln, testConfig(memAddr), mock)
	st := states(t, h.bus)
	connectMem(t, h, ln)

	mock.Add(h.conn.cfg.Connection.HeartbeatTimeout.Duration())
	waitState(t, st, types.StateHeartbeatTimeout)
	waitState(t, st, types.StateReconnecting)

	acceptReady(t, ln, nil)
	waitState(t, st, types.StateConnected)

	assert.Equal(t, 2, ln.Dialed())
	expected := `
# HELP liquiddb_client_heartbeat_timeouts_total Total number of heartbeat timeouts
# TYPE liquiddb_client_heartbeat_timeouts_total counter
liquiddb_client_heartbeat_timeouts_total{client="test"} 1
# HELP liquiddb_client_reconnects_total Total number of successful reconnects
# TYPE liquiddb_client_reconnects_total counter
liquiddb_client_reconnects_total{client="test"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(h.metrics.Gatherer(), strings.NewReader(expected),
		"liquiddb_client_heartbeat_timeouts_total", "liquiddb_client_reconnects_total"))
}

// TestSession_PingsKeepAlive 测试持续收到 ping 时不会超时
func TestSession_PingsKeepAlive(t *testing.T) {
	mock := clock.NewMock()
	ln := memory.NewListener()
	h := newHarness(t, ln, testConfig(memAddr), mock)
	srv := connectMem(t, h, ln)
	timeout := h.conn.cfg.Connection.HeartbeatTimeout.Duration()

	for i := 0; i < 5; i++ {
		send(t, srv, protocol.NewPing())
		require.Equal(t, protocol.TypePong, recv(t, srv).Type)
		mock.Add(timeout * 2 / 3)
	}

	// 给看门狗处理最后一次到期的机会
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, types.StateConnected, h.conn.State())
	assert.Equal(t, 1, ln.Dialed())
}

// TestSession_ProtocolErrorDropped 测试格式错误的消息被丢弃
func TestSession_ProtocolErrorDropped(t *testing.T) {
	ln := memory.NewListener()
	h := newHarness(t, ln, testConfig(memAddr), clock.New())
	srv := connectMem(t, h, ln)

	require.NoError(t, srv.Send(context.Background(), []byte("not json")))
	require.NoError(t, srv.Send(context.Background(), []byte(`{"type":"bogus","path":[]}`)))
	send(t, srv, protocol.NewPong())

	ev, err := protocol.NewEvent("", types.MustParsePath("k"), types.OpInsert, structpb.NewStringValue("v"))
	require.NoError(t, err)
	send(t, srv, ev)

	require.Eventually(t, func() bool {
		return h.conn.Tree().Get(types.MustParsePath("k")).GetStringValue() == "v"
	}, waitFor, 5*time.Millisecond)
	assert.Equal(t, types.StateConnected, h.conn.State())
	assert.Equal(t, 1, ln.Dialed())

	// 非 JSON、未知类型、服务端不应发送的 pong
	expected := `
# HELP liquiddb_client_protocol_errors_total Total malformed server messages dropped
# TYPE liquiddb_client_protocol_errors_total counter
liquiddb_client_protocol_errors_total{client="test"} 3
`
	assert.NoError(t, testutil.GatherAndCompare(h.metrics.Gatherer(), strings.NewReader(expected),
		"liquiddb_client_protocol_errors_total"))
}

// TestSession_DuplicateEchoIgnored 测试重复回显只派发一次
func TestSession_DuplicateEchoIgnored(t *testing.T) {
	ln := memory.NewListener()
	h := newHarness(t, ln, testConfig(memAddr), clock.New())
	srv := connectMem(t, h, ln)

	var rec recorder
	h.reg.Subscribe(types.SubscriptionSpec{Scope: types.ScopeWholeTree}, rec.handle)

	first, err := protocol.NewEvent("dup", types.MustParsePath("k"), types.OpInsert, structpb.NewNumberValue(1))
	require.NoError(t, err)
	second, err := protocol.NewEvent("dup", types.MustParsePath("k"), types.OpUpdate, structpb.NewNumberValue(2))
	require.NoError(t, err)
	send(t, srv, first)
	send(t, srv, second)
	send(t, srv, protocol.NewPing())
	recv(t, srv)

	require.Eventually(t, func() bool { return rec.len() == 1 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, 1.0, h.conn.Tree().Get(types.MustParsePath("k")).GetNumberValue())
}

// TestSession_ReplayInOrder 测试断线期间的写入按原顺序重放，先于之后的写入
func TestSession_ReplayInOrder(t *testing.T) {
	ln := memory.NewListener()
	h := newHarness(t, ln, testConfig(memAddr), clock.New())
	st := states(t, h.bus)
	srv := connectMem(t, h, ln)

	srv.Close()
	waitState(t, st, types.StateReconnecting)

	ids := make([]string, 3)
	for i := range ids {
		msg := setMsg(t, "k", i)
		go func() { _, _ = h.conn.Write(context.Background(), msg) }()
		require.Eventually(t, func() bool { return h.conn.Pending() == i+1 }, waitFor, time.Millisecond)
		ids[i] = msg.ID
	}

	srv = acceptReady(t, ln, nil)
	for i := range ids {
		m := recv(t, srv)
		assert.Equal(t, protocol.TypeSet, m.Type)
		assert.Equal(t, ids[i], m.ID, "replay order")
	}

	// 回显完成写入
	for i := range ids {
		ev, err := protocol.NewEvent(ids[i], types.MustParsePath("k"), types.OpUpdate, structpb.NewNumberValue(float64(i)))
		require.NoError(t, err)
		send(t, srv, ev)
	}
	require.Eventually(t, func() bool { return h.conn.Pending() == 0 }, waitFor, 5*time.Millisecond)
}

// TestSession_AckAfterLostEcho 测试回显丢失的写入在去重 ack 后返回同步到的操作
func TestSession_AckAfterLostEcho(t *testing.T) {
	ln := memory.NewListener()
	h := newHarness(t, ln, testConfig(memAddr), clock.New())
	st := states(t, h.bus)
	srv := connectMem(t, h, ln)

	type result struct {
		op  *types.Operation
		err error
	}
	msg := setMsg(t, "k", 7)
	done := make(chan result, 1)
	go func() {
		op, err := h.conn.Write(context.Background(), msg)
		done <- result{op, err}
	}()

	// 服务端已应用写入，回显发出前连接断开
	assert.Equal(t, msg.ID, recv(t, srv).ID)
	srv.Close()
	waitState(t, st, types.StateReconnecting)

	snapshot, err := types.NewValue(map[string]any{"k": 7})
	require.NoError(t, err)
	srv = acceptReady(t, ln, snapshot)
	replayed := recv(t, srv)
	require.Equal(t, msg.ID, replayed.ID)
	send(t, srv, protocol.NewAck(replayed.ID, replayed.TreePath()))

	select {
	case r := <-done:
		require.NoError(t, r.err)
		require.NotNil(t, r.op)
		assert.Equal(t, types.OpInsert, r.op.Kind)
		assert.Equal(t, msg.ID, r.op.ID)
		assert.Equal(t, "k", r.op.Path.String())
		assert.Equal(t, 7.0, r.op.Value.GetNumberValue())
	case <-time.After(waitFor):
		t.Fatal("write not resolved")
	}
	assert.Zero(t, h.conn.Pending())
}

// TestSession_ReconnectExhausted 测试重试耗尽后保留待确认写入
func TestSession_ReconnectExhausted(t *testing.T) {
	ln := memory.NewListener()
	cfg := testConfig(memAddr)
	cfg.Reconnect.MaxAttempts = 2
	h := newHarness(t, ln, cfg, clock.New())
	st := states(t, h.bus)
	srv := connectMem(t, h, ln)

	ln.FailDials(errors.New("refused"))
	srv.Close()
	waitState(t, st, types.StateReconnecting)
	waitState(t, st, types.StateDisconnected)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := h.conn.Write(ctx, setMsg(t, "k", 1))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, h.conn.Pending(), "write stays queued")

	err = h.conn.Reconnect(context.Background())
	assert.ErrorIs(t, err, types.ErrReconnectExhausted)

	ln.FailDials(nil)
	errCh := make(chan error, 1)
	go func() { errCh <- h.conn.Reconnect(context.Background()) }()
	srv = acceptReady(t, ln, nil)
	require.NoError(t, <-errCh)
	assert.Equal(t, protocol.TypeSet, recv(t, srv).Type)
}

// TestSession_NoReconnectWhenDisabled 测试关闭自动重连
func TestSession_NoReconnectWhenDisabled(t *testing.T) {
	ln := memory.NewListener()
	cfg := testConfig(memAddr)
	cfg.Reconnect.Enabled = false
	h := newHarness(t, ln, cfg, clock.New())
	st := states(t, h.bus)
	srv := connectMem(t, h, ln)

	sub, err := h.bus.Subscribe(new(types.EvtDisconnected))
	require.NoError(t, err)
	defer sub.Close()

	srv.Close()
	waitState(t, st, types.StateDisconnected)

	select {
	case e := <-sub.Out():
		assert.ErrorIs(t, e.(types.EvtDisconnected).Reason, types.ErrTransport)
	case <-time.After(waitFor):
		t.Fatal("no disconnected event")
	}
	assert.Equal(t, 1, ln.Dialed())

	// 断线期间读取回退到镜像
	v, err := h.conn.Fetch(context.Background(), types.MustParsePath("x"))
	require.NoError(t, err)
	assert.Nil(t, v)
}

// TestSession_CloseWhileSessionEnding 测试会话结束处理中途 Close 仍然生效
func TestSession_CloseWhileSessionEnding(t *testing.T) {
	ln := memory.NewListener()
	h := newHarness(t, ln, testConfig(memAddr), clock.New())
	srv := connectMem(t, h, ln)

	entered, release := holdLog(t, "会话丢失")
	srv.Close()
	select {
	case <-entered:
	case <-time.After(waitFor):
		t.Fatal("session end not observed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, h.conn.Close(ctx))
	release()

	assert.Never(t, func() bool { return h.conn.State() != types.StateClosed }, 100*time.Millisecond, 5*time.Millisecond)
	dialed := ln.Dialed()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, dialed, ln.Dialed(), "no dial after close")
}

// TestSession_CloseKeepsUndispatchedOps 测试 Close 时排队未派发的操作在重连后补发
func TestSession_CloseKeepsUndispatchedOps(t *testing.T) {
	ln := memory.NewListener()
	h := newHarness(t, ln, testConfig(memAddr), clock.New())
	srv := connectMem(t, h, ln)

	var rec recorder
	var once sync.Once
	entered := make(chan struct{})
	release := make(chan struct{})
	h.reg.Subscribe(types.SubscriptionSpec{Scope: types.ScopeWholeTree}, func(op *types.Operation) {
		rec.handle(op)
		once.Do(func() {
			close(entered)
			<-release
		})
	})

	a, b := types.MustParsePath("a"), types.MustParsePath("b")
	ev, err := protocol.NewEvent("", a, types.OpInsert, structpb.NewNumberValue(1))
	require.NoError(t, err)
	send(t, srv, ev)
	select {
	case <-entered:
	case <-time.After(waitFor):
		t.Fatal("first op not dispatched")
	}

	ev, err = protocol.NewEvent("", b, types.OpInsert, structpb.NewNumberValue(2))
	require.NoError(t, err)
	send(t, srv, ev)
	require.Eventually(t, func() bool { return h.conn.Tree().Get(b) != nil }, waitFor, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, h.conn.Close(ctx))

	snapshot, err := types.NewValue(map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)
	errCh := make(chan error, 1)
	go func() { errCh <- h.conn.Reconnect(context.Background()) }()
	acceptReady(t, ln, snapshot)
	require.NoError(t, <-errCh)

	// 第一个回调仍在执行，新会话的派发必须等它返回
	assert.Never(t, func() bool { return rec.len() > 1 }, 50*time.Millisecond, 5*time.Millisecond)
	close(release)

	require.Eventually(t, func() bool { return rec.len() == 2 }, waitFor, 5*time.Millisecond)
	ops := rec.list()
	assert.True(t, ops[0].Path.Equal(a))
	assert.True(t, ops[1].Path.Equal(b))
	assert.Equal(t, types.OpInsert, ops[1].Kind)
	assert.Never(t, func() bool { return rec.len() > 2 }, 50*time.Millisecond, 5*time.Millisecond)
}

// TestSession_FetchFallsBackOnLoss 测试查询中会话丢失时用镜像应答
func TestSession_FetchFallsBackOnLoss(t *testing.T) {
	ln := memory.NewListener()
	cfg := testConfig(memAddr)
	cfg.Reconnect.Enabled = false
	h := newHarness(t, ln, cfg, clock.New())

	errCh := make(chan error, 1)
	go func() { errCh <- h.conn.Connect(context.Background()) }()
	srv := acceptReady(t, ln, structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
		"x": structpb.NewNumberValue(7),
	}}))
	require.NoError(t, <-errCh)

	type result struct {
		v   *structpb.Value
		err error
	}
	got := make(chan result, 1)
	go func() {
		v, err := h.conn.Fetch(context.Background(), types.MustParsePath("x"))
		got <- result{v, err}
	}()

	assert.Equal(t, protocol.TypeGet, recv(t, srv).Type)
	srv.Close()

	r := <-got
	require.NoError(t, r.err)
	assert.Equal(t, 7.0, r.v.GetNumberValue())
}

// TestSession_ServerError 测试 error 应答
func TestSession_ServerError(t *testing.T) {
	ln := memory.NewListener()
	h := newHarness(t, ln, testConfig(memAddr), clock.New())
	srv := connectMem(t, h, ln)

	errCh := make(chan error, 1)
	go func() {
		_, err := h.conn.Write(context.Background(), setMsg(t, "k", 1))
		errCh <- err
	}()
	m := recv(t, srv)
	send(t, srv, protocol.NewError(m.ID, m.TreePath(), "quota"))

	err := <-errCh
	assert.ErrorIs(t, err, types.ErrRejected)
	assert.Equal(t, 0, h.conn.Pending())
}

package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-liquiddb/pkg/types"
)

// echoServer 启动回显服务器
func echoServer(t *testing.T) (string, func()) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if string(data) == "bye" {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
	return "ws" + strings.TrimPrefix(srv.URL, "http"), srv.Close
}

// TestChannel_Echo 测试收发
func TestChannel_Echo(t *testing.T) {
	url, stop := echoServer(t)
	defer stop()

	ctx := context.Background()
	ch, err := NewDialer(DefaultConfig()).Dial(ctx, url)
	require.NoError(t, err)
	defer ch.Close()

	require.NoError(t, ch.Send(ctx, []byte(`{"type":"pong","path":[]}`)))
	got, err := ch.Receive(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"pong","path":[]}`, string(got))
}

// TestDialer_Unreachable 测试拨号失败包装为传输错误
func TestDialer_Unreachable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HandshakeTimeout = 200 * time.Millisecond

	_, err := NewDialer(cfg).Dial(context.Background(), "ws://127.0.0.1:1/db")
	assert.ErrorIs(t, err, types.ErrTransport)
}

// TestChannel_CloseUnblocksReceive 测试 Close 打断阻塞读
func TestChannel_CloseUnblocksReceive(t *testing.T) {
	url, stop := echoServer(t)
	defer stop()

	ch, err := NewDialer(DefaultConfig()).Dial(context.Background(), url)
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := ch.Receive(context.Background())
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, types.ErrTransport)
	case <-time.After(2 * time.Second):
		t.Fatal("Receive not unblocked by Close")
	}

	assert.ErrorIs(t, ch.Send(context.Background(), []byte("x")), types.ErrTransport)
}

// TestChannel_ReceiveContext 测试 ctx 取消打断阻塞读
func TestChannel_ReceiveContext(t *testing.T) {
	url, stop := echoServer(t)
	defer stop()

	ch, err := NewDialer(DefaultConfig()).Dial(context.Background(), url)
	require.NoError(t, err)
	defer ch.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = ch.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// TestChannel_PeerClose 测试对端正常关闭
func TestChannel_PeerClose(t *testing.T) {
	url, stop := echoServer(t)
	defer stop()

	ctx := context.Background()
	ch, err := NewDialer(DefaultConfig()).Dial(ctx, url)
	require.NoError(t, err)
	defer ch.Close()

	require.NoError(t, ch.Send(ctx, []byte("bye")))
	_, err = ch.Receive(ctx)
	assert.ErrorIs(t, err, types.ErrTransport)
}

// TestChannel_ReadLimit 测试超过读限制的帧
func TestChannel_ReadLimit(t *testing.T) {
	url, stop := echoServer(t)
	defer stop()

	cfg := DefaultConfig()
	cfg.ReadLimit = 8
	ctx := context.Background()
	ch, err := NewDialer(cfg).Dial(ctx, url)
	require.NoError(t, err)
	defer ch.Close()

	require.NoError(t, ch.Send(ctx, []byte(strings.Repeat("x", 64))))
	_, err = ch.Receive(ctx)
	assert.ErrorIs(t, err, types.ErrTransport)
}

package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-liquiddb/pkg/types"
)

// TestPipe_SendReceive 测试双向收发
func TestPipe_SendReceive(t *testing.T) {
	ctx := context.Background()
	a, b := Pipe()

	require.NoError(t, a.Send(ctx, []byte("ping")))
	got, err := b.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(got))

	require.NoError(t, b.Send(ctx, []byte("pong")))
	got, err = a.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(got))
}

// TestPipe_Close 测试关闭后两端都返回传输错误
func TestPipe_Close(t *testing.T) {
	ctx := context.Background()
	a, b := Pipe()

	require.NoError(t, a.Send(ctx, []byte("last")))
	require.NoError(t, b.Close())

	got, err := b.Receive(ctx)
	require.NoError(t, err, "buffered frame still delivered")
	assert.Equal(t, "last", string(got))

	_, err = b.Receive(ctx)
	assert.ErrorIs(t, err, types.ErrTransport)
	assert.ErrorIs(t, a.Send(ctx, []byte("x")), types.ErrTransport)
}

// TestPipe_ReceiveContext 测试 ctx 取消
func TestPipe_ReceiveContext(t *testing.T) {
	a, _ := Pipe()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := a.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// TestListener_DialAccept 测试拨号与接受
func TestListener_DialAccept(t *testing.T) {
	ctx := context.Background()
	ln := NewListener()
	defer ln.Close()

	client, err := ln.Dial(ctx, "mem://test")
	require.NoError(t, err)
	server, err := ln.Accept(ctx)
	require.NoError(t, err)

	require.NoError(t, server.Send(ctx, []byte("ready")))
	got, err := client.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ready", string(got))
	assert.Equal(t, 1, ln.Dialed())
}

// TestListener_FailDials 测试拨号失败注入
func TestListener_FailDials(t *testing.T) {
	ln := NewListener()
	ln.FailDials(errors.New("refused"))

	_, err := ln.Dial(context.Background(), "mem://test")
	assert.ErrorIs(t, err, types.ErrTransport)

	ln.FailDials(nil)
	_, err = ln.Dial(context.Background(), "mem://test")
	assert.NoError(t, err)
}

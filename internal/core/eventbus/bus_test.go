package eventbus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-liquiddb/pkg/types"
)

// TestBus_EmitAndReceive 测试事件发射和接收
func TestBus_EmitAndReceive(t *testing.T) {
	bus := NewBus()

	sub, err := bus.Subscribe(new(types.EvtConnected))
	require.NoError(t, err)
	defer sub.Close()

	em, err := bus.Emitter(new(types.EvtConnected))
	require.NoError(t, err)
	defer em.Close()

	require.NoError(t, em.Emit(types.EvtConnected{Address: "ws://x/db", Reconnect: true}))

	select {
	case evt := <-sub.Out():
		e, ok := evt.(types.EvtConnected)
		require.True(t, ok)
		assert.Equal(t, "ws://x/db", e.Address)
		assert.True(t, e.Reconnect)
	case <-time.After(time.Second):
		t.Fatal("event not received")
	}
}

// TestBus_NonPointerType 测试非指针类型
func TestBus_NonPointerType(t *testing.T) {
	bus := NewBus()

	_, err := bus.Subscribe(types.EvtConnected{})
	assert.ErrorIs(t, err, ErrNonPointerType)

	_, err = bus.Emitter(nil)
	assert.ErrorIs(t, err, ErrInvalidEventType)
}

// TestEmitter_WrongType 测试发射错误类型的事件
func TestEmitter_WrongType(t *testing.T) {
	bus := NewBus()
	em, err := bus.Emitter(new(types.EvtConnected))
	require.NoError(t, err)

	assert.ErrorIs(t, em.Emit(types.EvtDisconnected{}), ErrInvalidEventType)
}

// TestBus_Stateful 测试有状态发射器
func TestBus_Stateful(t *testing.T) {
	bus := NewBus()
	em, err := bus.Emitter(new(types.EvtStateChanged), Stateful())
	require.NoError(t, err)

	require.NoError(t, em.Emit(types.EvtStateChanged{From: types.StateConnecting, To: types.StateConnected}))

	sub, err := bus.Subscribe(new(types.EvtStateChanged))
	require.NoError(t, err)

	select {
	case evt := <-sub.Out():
		assert.Equal(t, types.StateConnected, evt.(types.EvtStateChanged).To)
	case <-time.After(time.Second):
		t.Fatal("stateful event not replayed")
	}
}

// TestBus_DropsWhenFull 测试缓冲区满时丢弃
func TestBus_DropsWhenFull(t *testing.T) {
	bus := NewBus()
	sub, err := bus.Subscribe(new(types.EvtConnected), BufSize(1))
	require.NoError(t, err)
	defer sub.Close()

	em, err := bus.Emitter(new(types.EvtConnected))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, em.Emit(types.EvtConnected{}))
	}
	assert.Equal(t, int64(2), bus.Dropped())
}

// TestSubscription_Close 测试取消订阅关闭通道
func TestSubscription_Close(t *testing.T) {
	bus := NewBus()
	sub, err := bus.Subscribe(new(types.EvtDisconnected))
	require.NoError(t, err)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	_, ok := <-sub.Out()
	assert.False(t, ok)

	bus.mu.RLock()
	defer bus.mu.RUnlock()
	assert.Empty(t, bus.nodes)
}

// TestBus_Close 测试关闭总线结束所有订阅
func TestBus_Close(t *testing.T) {
	bus := NewBus()
	sub, err := bus.Subscribe(new(types.EvtConnected))
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range sub.Out() {
		}
	}()

	require.NoError(t, bus.Close())
	wg.Wait()

	_, err = bus.Subscribe(new(types.EvtConnected))
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, sub.Close())
}

// TestBus_ConcurrentEmit 测试并发发射
func TestBus_ConcurrentEmit(t *testing.T) {
	bus := NewBus()
	sub, err := bus.Subscribe(new(types.EvtConnected), BufSize(1000))
	require.NoError(t, err)
	defer sub.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			em, err := bus.Emitter(new(types.EvtConnected))
			if err != nil {
				return
			}
			defer em.Close()
			for j := 0; j < 50; j++ {
				_ = em.Emit(types.EvtConnected{})
			}
		}()
	}
	wg.Wait()

	assert.Len(t, sub.Out(), 500)
}

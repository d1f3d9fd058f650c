package connection

import (
	"sync"

	"github.com/dep2p/go-liquiddb/internal/core/metrics"
	pkgif "github.com/dep2p/go-liquiddb/pkg/interfaces"
	"github.com/dep2p/go-liquiddb/pkg/types"
)

// dispatcher 有序派发协程
//
// 读协程只负责入队，回调在派发协程中依次执行，
// 回调内部可以阻塞等待 Set/Value 而不会卡住读协程。
type dispatcher struct {
	registry pkgif.PathRegistry
	metrics  *metrics.Metrics

	mu    sync.Mutex
	queue []*types.Operation
	wake  chan struct{}
	// quit 非 nil 表示派发协程在运行
	quit chan struct{}
	// done 最近启动的派发协程退出时关闭
	done chan struct{}
}

func newDispatcher(registry pkgif.PathRegistry, m *metrics.Metrics) *dispatcher {
	return &dispatcher{
		registry: registry,
		metrics:  m,
		wake:     make(chan struct{}, 1),
	}
}

// start 启动派发协程（已运行时无操作）
func (d *dispatcher) start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.quit != nil {
		return
	}
	prev := d.done
	d.quit = make(chan struct{})
	d.done = make(chan struct{})
	go d.loop(d.quit, prev, d.done)
}

// stop 停止派发，未派发的操作保留到下次 start
//
// 返回后不会再开始新的派发；正在执行的回调不受影响，
// 因此可以在回调内部调用。
func (d *dispatcher) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.quit != nil {
		close(d.quit)
		d.quit = nil
	}
	if n := len(d.queue); n > 0 {
		logger.Debug("保留未派发的操作", "count", n)
	}
}

// push 追加操作
func (d *dispatcher) push(ops ...*types.Operation) {
	if len(ops) == 0 {
		return
	}
	d.mu.Lock()
	d.queue = append(d.queue, ops...)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// loop 派发循环，prev 为上一个派发协程的 done，等它退出后才开始，
// 保证同一时刻最多一个回调在执行
func (d *dispatcher) loop(quit, prev, done chan struct{}) {
	defer close(done)
	if prev != nil {
		select {
		case <-prev:
		case <-quit:
			return
		}
	}
	for {
		d.mu.Lock()
		if d.quit != quit {
			d.mu.Unlock()
			return
		}
		if len(d.queue) == 0 {
			d.mu.Unlock()
			select {
			case <-d.wake:
			case <-quit:
				return
			}
			continue
		}
		op := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		d.mu.Unlock()

		d.registry.Dispatch(op)
		d.metrics.OperationDispatched(op.Kind)
	}
}

package connection

import (
	"sync"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dep2p/go-liquiddb/pkg/protocol"
	"github.com/dep2p/go-liquiddb/pkg/types"
)

// frame 待发送的编码消息
type frame struct {
	typ  protocol.Type
	data []byte
}

// request 等待服务端应答的请求（写入或读取）
type request struct {
	id    string
	path  types.Path
	frame frame
	start time.Time

	// want 写入后路径处的值（删除为 nil），只用于写入
	want *structpb.Value
	// resync 重连时重新同步差异中与本写入一致的操作，
	// 服务端以 ack 去重应答时作为结果，由 Connection.mu 保护
	resync *types.Operation

	once  sync.Once
	done  chan struct{}
	op    *types.Operation
	value *structpb.Value
	err   error
}

func newRequest(msg *protocol.Message, data []byte, now time.Time) *request {
	return &request{
		id:    msg.ID,
		path:  msg.TreePath(),
		frame: frame{typ: msg.Type, data: data},
		start: now,
		done:  make(chan struct{}),
	}
}

// resolve 完成请求，只有第一次生效
func (r *request) resolve(op *types.Operation, value *structpb.Value, err error) {
	r.once.Do(func() {
		r.op, r.value, r.err = op, value, err
		close(r.done)
	})
}

// ============================================================================
//                              outbox
// ============================================================================

// outbox 按发出顺序保存尚未确认的写入
//
// 非并发安全，由 Connection.mu 保护。
type outbox struct {
	order []*request
	byID  map[string]*request
}

func newOutbox() *outbox {
	return &outbox{byID: make(map[string]*request)}
}

func (o *outbox) push(r *request) {
	o.order = append(o.order, r)
	o.byID[r.id] = r
}

// take 移除并返回指定写入，不存在返回 nil
func (o *outbox) take(id string) *request {
	r, ok := o.byID[id]
	if !ok {
		return nil
	}
	delete(o.byID, id)
	for i, x := range o.order {
		if x == r {
			o.order = append(o.order[:i:i], o.order[i+1:]...)
			break
		}
	}
	return r
}

// each 按原顺序遍历待确认写入
func (o *outbox) each(fn func(*request)) {
	for _, r := range o.order {
		fn(r)
	}
}

// frames 按原顺序返回所有待确认写入的帧
func (o *outbox) frames() []frame {
	out := make([]frame, len(o.order))
	for i, r := range o.order {
		out[i] = r.frame
	}
	return out
}

func (o *outbox) Len() int {
	return len(o.order)
}

package connection

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dep2p/go-liquiddb/internal/core/store"
	"github.com/dep2p/go-liquiddb/pkg/protocol"
	"github.com/dep2p/go-liquiddb/pkg/types"
)

// handle 处理一条入站消息，在读协程中按到达顺序调用
func (c *Connection) handle(s *session, msg *protocol.Message) error {
	switch msg.Type {
	case protocol.TypePing:
		s.enqueue(pongFrame)

	case protocol.TypeReady:
		// 会话中途的 ready 视为服务端要求重新同步
		snapshot, err := msg.TreeValue()
		if err != nil {
			return err
		}
		c.disp.push(c.tree.Reset(snapshot)...)

	case protocol.TypeEvent:
		return c.handleEvent(msg)

	case protocol.TypeAck:
		c.applied.Add(msg.ID, struct{}{})
		if !c.resolveAck(msg.ID) {
			logger.Debug("未知写入的 ack", "id", msg.ID)
		}

	case protocol.TypeValue:
		v, err := msg.TreeValue()
		if err != nil {
			c.resolveGet(msg.ID, nil, err)
			return err
		}
		c.resolveGet(msg.ID, v, nil)

	case protocol.TypeError:
		reason := fmt.Errorf("%w: %s", types.ErrRejected, msg.Error)
		if !c.resolveWrite(msg.ID, nil, reason) && !c.resolveGet(msg.ID, nil, reason) {
			logger.Debug("未知请求的错误应答", "id", msg.ID, "error", msg.Error)
		}

	default:
		return fmt.Errorf("%w: unexpected %q from server", types.ErrProtocol, msg.Type)
	}
	return nil
}

// handleEvent 应用服务端广播的原始变更
func (c *Connection) handleEvent(msg *protocol.Message) error {
	value, err := msg.TreeValue()
	if err != nil {
		return err
	}
	path := msg.TreePath()

	if msg.ID != "" {
		if c.applied.Contains(msg.ID) {
			logger.Debug("忽略重复回显", "id", msg.ID, "path", path.String())
			return nil
		}
		c.applied.Add(msg.ID, struct{}{})
	}

	ops := c.tree.Apply(store.Mutation{Path: path, Value: value, ID: msg.ID})
	c.disp.push(ops...)

	if msg.ID != "" {
		c.resolveWrite(msg.ID, ownOperation(ops, path), nil)
	}
	return nil
}

// resolveWrite 完成待确认写入，返回是否找到
func (c *Connection) resolveWrite(id string, op *types.Operation, err error) bool {
	return c.finishWrite(id, func(*request) *types.Operation { return op }, err)
}

// resolveAck 以 ack 完成写入：树未因本次应答改变，
// 结果为重连时记录的重新同步操作（没有则为 nil）
func (c *Connection) resolveAck(id string) bool {
	return c.finishWrite(id, func(r *request) *types.Operation { return r.resync }, nil)
}

// finishWrite 取出待确认写入并完成，pick 在持有 c.mu 时选择结果操作
func (c *Connection) finishWrite(id string, pick func(*request) *types.Operation, err error) bool {
	if id == "" {
		return false
	}
	c.mu.Lock()
	r := c.pending.take(id)
	n := c.pending.Len()
	var op *types.Operation
	if r != nil {
		op = pick(r)
	}
	c.mu.Unlock()
	if r == nil {
		return false
	}

	c.metrics.SetPendingWrites(n)
	c.metrics.ObserveWrite(c.clock.Since(r.start))
	r.resolve(op, nil, err)
	return true
}

// resolveGet 完成读取请求，返回是否找到
func (c *Connection) resolveGet(id string, v *structpb.Value, err error) bool {
	if id == "" {
		return false
	}
	c.mu.Lock()
	r, ok := c.gets[id]
	delete(c.gets, id)
	c.mu.Unlock()
	if !ok {
		return false
	}
	r.resolve(nil, v, err)
	return true
}

// ownOperation 返回写入路径本身的操作
func ownOperation(ops []*types.Operation, path types.Path) *types.Operation {
	for _, op := range ops {
		if op.Path.Equal(path) {
			return op
		}
	}
	return nil
}

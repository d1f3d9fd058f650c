package protocol

import (
	"fmt"

	json "github.com/goccy/go-json"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dep2p/go-liquiddb/pkg/types"
)

// ============================================================================
//                              消息类型
// ============================================================================

// Type 消息类型
type Type string

const (
	TypeReady  Type = "ready"
	TypePing   Type = "ping"
	TypePong   Type = "pong"
	TypeSet    Type = "set"
	TypeDelete Type = "delete"
	TypeGet    Type = "get"
	TypeValue  Type = "value"
	TypeEvent  Type = "event"
	TypeAck    Type = "ack"
	TypeError  Type = "error"
)

// IsWrite 是否为写入请求
func (t Type) IsWrite() bool {
	return t == TypeSet || t == TypeDelete
}

// ============================================================================
//                              Message - 消息信封
// ============================================================================

// Message 线上消息信封
type Message struct {
	Type      Type            `json:"type"`
	ID        string          `json:"id,omitempty"`
	Path      []string        `json:"path"`
	Value     json.RawMessage `json:"value,omitempty"`
	Exists    bool            `json:"exists,omitempty"`
	Operation types.OpKind    `json:"operation,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// TreePath 返回消息路径（可能为树根）
func (m *Message) TreePath() types.Path {
	return types.Path(m.Path).Clone()
}

// TreeValue 解出消息携带的节点值
//
// 返回 nil 表示不存在：
//   - ready/value 消息 exists=false
//   - delete 消息，或 operation=delete 的 event
//
// 其余情况下缺失的 value 视为 null 标量。
func (m *Message) TreeValue() (*structpb.Value, error) {
	switch m.Type {
	case TypeReady, TypeValue:
		if !m.Exists {
			return nil, nil
		}
	case TypeDelete:
		return nil, nil
	case TypeEvent:
		if m.Operation == types.OpDelete {
			return nil, nil
		}
	}
	return DecodeValue(m.Value)
}

// ============================================================================
//                              构造函数
// ============================================================================

// NewPing 创建心跳消息
func NewPing() *Message {
	return &Message{Type: TypePing, Path: []string{}}
}

// NewPong 创建心跳应答
func NewPong() *Message {
	return &Message{Type: TypePong, Path: []string{}}
}

// NewSet 创建写入请求
func NewSet(id string, path types.Path, v *structpb.Value) (*Message, error) {
	raw, err := EncodeValue(v)
	if err != nil {
		return nil, err
	}
	return &Message{Type: TypeSet, ID: id, Path: path.Clone(), Value: raw}, nil
}

// NewDelete 创建删除请求
func NewDelete(id string, path types.Path) *Message {
	return &Message{Type: TypeDelete, ID: id, Path: path.Clone()}
}

// NewGet 创建读取请求
func NewGet(id string, path types.Path) *Message {
	return &Message{Type: TypeGet, ID: id, Path: path.Clone()}
}

// NewReady 创建就绪消息（snapshot 为 nil 表示空树）
func NewReady(snapshot *structpb.Value) (*Message, error) {
	m := &Message{Type: TypeReady, Path: []string{}}
	return m, m.setOptionalValue(snapshot)
}

// NewValueReply 创建 get 应答
func NewValueReply(id string, path types.Path, v *structpb.Value) (*Message, error) {
	m := &Message{Type: TypeValue, ID: id, Path: path.Clone()}
	return m, m.setOptionalValue(v)
}

// NewEvent 创建变更广播
//
// v 为 nil 表示删除，operation 置为 delete。
func NewEvent(id string, path types.Path, op types.OpKind, v *structpb.Value) (*Message, error) {
	m := &Message{Type: TypeEvent, ID: id, Path: path.Clone(), Operation: op}
	if v == nil {
		m.Operation = types.OpDelete
		return m, nil
	}
	raw, err := EncodeValue(v)
	if err != nil {
		return nil, err
	}
	m.Value = raw
	return m, nil
}

// NewAck 创建重复写入确认
func NewAck(id string, path types.Path) *Message {
	return &Message{Type: TypeAck, ID: id, Path: path.Clone()}
}

// NewError 创建拒绝消息
func NewError(id string, path types.Path, reason string) *Message {
	return &Message{Type: TypeError, ID: id, Path: path.Clone(), Error: reason}
}

func (m *Message) setOptionalValue(v *structpb.Value) error {
	if v == nil {
		m.Exists = false
		m.Value = nil
		return nil
	}
	raw, err := EncodeValue(v)
	if err != nil {
		return err
	}
	m.Exists = true
	m.Value = raw
	return nil
}

// ============================================================================
//                              值编解码
// ============================================================================

// EncodeValue 将节点值编码为 JSON
func EncodeValue(v *structpb.Value) (json.RawMessage, error) {
	if v == nil {
		v = structpb.NewNullValue()
	}
	data, err := protojson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidValue, err)
	}
	return json.RawMessage(data), nil
}

// DecodeValue 解码 JSON 为节点值，空输入视为 null
func DecodeValue(raw json.RawMessage) (*structpb.Value, error) {
	if len(raw) == 0 {
		return structpb.NewNullValue(), nil
	}
	v := &structpb.Value{}
	if err := protojson.Unmarshal(raw, v); err != nil {
		return nil, fmt.Errorf("%w: bad value: %v", types.ErrProtocol, err)
	}
	return v, nil
}

package protocol

import (
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/dep2p/go-liquiddb/pkg/types"
)

// Encode 编码消息
func Encode(m *Message) ([]byte, error) {
	if m.Path == nil {
		m.Path = []string{}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s message: %w", m.Type, err)
	}
	return data, nil
}

// Decode 解码并校验消息
//
// 格式错误返回包装了 types.ErrProtocol 的错误。
func Decode(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrProtocol, err)
	}
	if err := Validate(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate 校验消息结构
//
// 只检查信封结构，value 的内容在使用时才解码。
func Validate(m *Message) error {
	switch m.Type {
	case TypeReady, TypePing, TypePong, TypeSet, TypeDelete, TypeGet:
	case TypeValue, TypeAck, TypeError:
		if m.ID == "" {
			return fmt.Errorf("%w: %s message without id", types.ErrProtocol, m.Type)
		}
	case TypeEvent:
		if m.Operation != "" && !m.Operation.Valid() {
			return fmt.Errorf("%w: unknown operation %q", types.ErrProtocol, m.Operation)
		}
	case "":
		return fmt.Errorf("%w: missing message type", types.ErrProtocol)
	default:
		return fmt.Errorf("%w: unknown message type %q", types.ErrProtocol, m.Type)
	}
	for i, seg := range m.Path {
		if seg == "" {
			return fmt.Errorf("%w: empty path segment at index %d", types.ErrProtocol, i)
		}
	}
	return nil
}

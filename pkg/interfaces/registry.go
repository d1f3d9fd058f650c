// Package interfaces 定义 LiquidDB 公共接口
//
// 本文件定义 PathRegistry 接口。
package interfaces

import (
	"github.com/dep2p/go-liquiddb/pkg/types"
)

// OperationHandler 操作回调
type OperationHandler func(op *types.Operation)

// PathRegistry 定义路径订阅表接口
//
// 订阅按路径存储，按路径包含关系匹配，与 Reference 身份无关。
type PathRegistry interface {
	// Subscribe 注册订阅，返回取消函数（可重复调用）
	Subscribe(spec types.SubscriptionSpec, handler OperationHandler) (cancel func())

	// Dispatch 将操作分发给所有匹配的订阅，返回被调用的回调数量
	Dispatch(op *types.Operation) int

	// Len 返回当前订阅数量
	Len() int
}

// Package interfaces 定义 LiquidDB 的公共接口
//
// 一个接口文件对应 internal/core 下的一个实现目录：
//   - transport.go - 双工消息通道（internal/core/transport/websocket）
//   - eventbus.go  - 生命周期事件总线（internal/core/eventbus）
//   - registry.go  - 路径订阅表（internal/core/registry）
//
// # 依赖方向
//
//	liquiddb → connection → (registry, store, transport, eventbus)
//
// 本包只依赖 pkg/types，禁止反向依赖。
package interfaces

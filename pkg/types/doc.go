// Package types 定义 LiquidDB 客户端的公共数据结构
//
// 这是整个系统的最底层包，不依赖任何其他 liquiddb 内部包。
// 所有类型都是值类型或不可变结构，用于在各模块间传递数据。
//
// # 职能
//
// pkg/types 的职能是定义 **Go 内部数据结构**：
//   - 模块间数据传递
//   - API 参数/返回值
//   - 事件类型、错误定义
//
// # 与 pkg/protocol 的区别
//
// pkg/types 定义 Go 内部数据结构（内存结构），
// pkg/protocol 定义线上消息（wire format）。
//
// # 文件组织
//
//   - path.go      - Path 规范路径（点分字符串在边界处解析）
//   - value.go     - 树节点值（基于 structpb.Value）
//   - operation.go - Operation 操作（insert/update/delete）与 OpKind
//   - scope.go     - 订阅范围与订阅描述
//   - state.go     - ConnectionState 连接状态机
//   - events.go    - 生命周期事件（连接、断开、状态变化）
//   - errors.go    - 公共错误定义
package types

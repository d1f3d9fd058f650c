// Package connection 实现到服务端的连接引擎
//
// Connection 负责：
//   - 拨号与就绪握手（等待 ready，期间应答 ping）
//   - 会话：读循环、写循环、心跳看门狗，由 errgroup 统一管理
//   - 写入确认：每个写入带客户端 UUID，收到回显（event/ack/error）后完成
//   - 重连：指数退避，握手后用 ready 快照重置镜像并派发差异，再按原顺序重放待确认写入
//   - 有序派发：分类后的操作经单一派发协程交给 PathRegistry
//
// # 状态机
//
//	disconnected -> connecting -> connected
//	connected -> heartbeat-timeout -> reconnecting -> connected
//	connected -> reconnecting -> connected        (传输错误)
//	任意状态 -> closed                             (Close)
//	closed -> reconnecting -> connected           (Reconnect)
//	reconnecting -> disconnected                  (重试耗尽)
//
// 传输错误与心跳超时不会让进行中的写入失败，写入保持排队直到重连后被确认。
// 只有在显式 Close 且没有进行中的重连时，新写入才返回 types.ErrNotConnected。
//
// # 恰好一次
//
// 重放的写入沿用原 ID。服务端按 ID 去重，重复写入只回 ack；
// 客户端用 LRU 记录已应用的写入 ID，忽略重复回显。
package connection

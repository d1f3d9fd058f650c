// Package websocket 基于 gorilla/websocket 实现消息通道
//
// 一条协议消息对应一个文本帧。
//
// # 超时
//
//   - 拨号：Dialer.HandshakeTimeout 与 ctx 取较早者
//   - 写入：每次 Send 设置写截止时间（WriteTimeout 与 ctx 截止时间取较早者）
//   - 读取：不设读截止时间，失活由上层心跳检测；ctx 取消或 Close 会让 Receive 返回
//
// 所有底层错误都包装为 types.ErrTransport。
package websocket

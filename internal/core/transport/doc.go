// Package transport 实现双工消息通道
//
// 子包：
//   - websocket: 默认实现，基于 github.com/gorilla/websocket（文本帧）
//   - memory:    进程内管道，用于测试
//
// Module 按统一配置提供 pkgif.Dialer；调用方通过 liquiddb.WithDialer 替换时，
// 根包不加载本模块。
package transport

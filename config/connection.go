// Package config 提供统一的配置管理
package config

import (
	"fmt"
	"time"
)

// ConnectionConfig 连接配置
type ConnectionConfig struct {
	// HandshakeTimeout 拨号与就绪握手的超时
	// 默认值: 5s
	HandshakeTimeout Duration `json:"handshake_timeout" yaml:"handshake_timeout"`

	// HeartbeatTimeout 心跳超时
	// 在此时间内没有收到任何服务端消息则判定连接失效并自动重连
	// 默认值: 15s
	HeartbeatTimeout Duration `json:"heartbeat_timeout" yaml:"heartbeat_timeout"`

	// WriteTimeout 单条消息写入超时
	// 默认值: 5s
	WriteTimeout Duration `json:"write_timeout" yaml:"write_timeout"`

	// ReadLimit 单条消息最大字节数
	// 默认值: 16 MiB
	ReadLimit int64 `json:"read_limit" yaml:"read_limit"`
}

// DefaultConnectionConfig 返回默认连接配置
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		HandshakeTimeout: Duration(5 * time.Second),
		HeartbeatTimeout: Duration(15 * time.Second),
		WriteTimeout:     Duration(5 * time.Second),
		ReadLimit:        16 << 20,
	}
}

// Validate 验证连接配置
func (c *ConnectionConfig) Validate() error {
	if c.HandshakeTimeout <= 0 {
		return fmt.Errorf("connection: handshake_timeout must be > 0")
	}
	if c.HeartbeatTimeout <= 0 {
		return fmt.Errorf("connection: heartbeat_timeout must be > 0")
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("connection: write_timeout must be > 0")
	}
	if c.ReadLimit <= 0 {
		return fmt.Errorf("connection: read_limit must be > 0")
	}
	return nil
}

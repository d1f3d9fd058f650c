// Package config 提供统一的配置管理
//
// 本包采用混合配置模式：
//   - 主 Config 结构体嵌入所有子配置
//   - 每个子配置在独立文件中定义
//   - 支持从 JSON / YAML 加载配置，支持环境变量覆盖
//   - 支持预设配置（default/fast/patient）
//
// 使用示例：
//
//	// 创建默认配置
//	cfg := config.NewConfig()
//	cfg.Address = "ws://db.example.com/db"
//	cfg.Connection.HeartbeatTimeout = config.Duration(30 * time.Second)
//
//	// 从文件加载（.json / .yaml / .yml）
//	cfg, err := config.LoadFile("liquid.yaml")
package config

import (
	"errors"
	"fmt"
	"net/url"
)

// DefaultAddress 默认服务端地址
const DefaultAddress = "ws://localhost:8080/db"

// Config 是 LiquidDB 客户端的完整配置结构
//
// 配置按照功能模块组织：
//   - Connection: 握手、心跳、写超时、读限制
//   - Reconnect: 自动重连与退避策略
//   - Metrics: Prometheus 指标
//   - Log: 日志级别与格式
type Config struct {
	// Address 服务端地址（ws:// 或 wss://）
	Address string `json:"address" yaml:"address"`

	// Connection 连接配置
	Connection ConnectionConfig `json:"connection" yaml:"connection"`

	// Reconnect 重连配置
	Reconnect ReconnectConfig `json:"reconnect" yaml:"reconnect"`

	// Metrics 指标配置
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`

	// Log 日志配置
	Log LogConfig `json:"log" yaml:"log"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		Address:    DefaultAddress,
		Connection: DefaultConnectionConfig(),
		Reconnect:  DefaultReconnectConfig(),
		Metrics:    DefaultMetricsConfig(),
		Log:        DefaultLogConfig(),
	}
}

// Clone 返回配置副本
func (c *Config) Clone() *Config {
	cp := *c
	return &cp
}

// Validate 验证配置的有效性
//
// 检查所有子配置是否有效，如果发现无效配置则返回错误。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if err := validateAddress(c.Address); err != nil {
		return err
	}
	if err := c.Connection.Validate(); err != nil {
		return err
	}
	if err := c.Reconnect.Validate(); err != nil {
		return err
	}
	if err := c.Metrics.Validate(); err != nil {
		return err
	}
	return c.Log.Validate()
}

func validateAddress(addr string) error {
	if addr == "" {
		return errors.New("address: must not be empty")
	}
	u, err := url.Parse(addr)
	if err != nil {
		return fmt.Errorf("address: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return fmt.Errorf("address: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("address: missing host in %q", addr)
	}
	return nil
}

// MustValidate 验证配置，如果失败则 panic
//
// 仅用于初始化阶段或测试代码。
func MustValidate(c *Config) {
	if err := c.Validate(); err != nil {
		panic(fmt.Sprintf("invalid config: %v", err))
	}
}

// Package config 提供统一的配置管理
package config

import (
	"fmt"
	"time"
)

// ReconnectConfig 自动重连配置
//
// 重连使用指数退避：每次失败后等待时间乘以 Multiplier，
// 并在 [1-RandomizationFactor, 1+RandomizationFactor] 范围内随机抖动，
// 上限为 MaxBackoff。
type ReconnectConfig struct {
	// Enabled 是否在会话丢失后自动重连
	// 默认值: true
	Enabled bool `json:"enabled" yaml:"enabled"`

	// InitialBackoff 首次重试前的等待时间
	// 默认值: 100ms
	InitialBackoff Duration `json:"initial_backoff" yaml:"initial_backoff"`

	// MaxBackoff 单次等待上限
	// 默认值: 10s
	MaxBackoff Duration `json:"max_backoff" yaml:"max_backoff"`

	// Multiplier 退避倍数
	// 默认值: 2
	Multiplier float64 `json:"multiplier" yaml:"multiplier"`

	// RandomizationFactor 抖动系数，0 表示不抖动
	// 默认值: 0.5
	RandomizationFactor float64 `json:"randomization_factor" yaml:"randomization_factor"`

	// MaxAttempts 单轮重连最多尝试次数，0 表示不限
	// 默认值: 0
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`
}

// DefaultReconnectConfig 返回默认重连配置
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		Enabled:             true,
		InitialBackoff:      Duration(100 * time.Millisecond),
		MaxBackoff:          Duration(10 * time.Second),
		Multiplier:          2,
		RandomizationFactor: 0.5,
		MaxAttempts:         0,
	}
}

// Validate 验证重连配置
func (c *ReconnectConfig) Validate() error {
	if c.InitialBackoff <= 0 {
		return fmt.Errorf("reconnect: initial_backoff must be > 0")
	}
	if c.MaxBackoff < c.InitialBackoff {
		return fmt.Errorf("reconnect: max_backoff must be >= initial_backoff")
	}
	if c.Multiplier < 1 {
		return fmt.Errorf("reconnect: multiplier must be >= 1")
	}
	if c.RandomizationFactor < 0 || c.RandomizationFactor >= 1 {
		return fmt.Errorf("reconnect: randomization_factor must be in [0, 1)")
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("reconnect: max_attempts must be >= 0")
	}
	return nil
}

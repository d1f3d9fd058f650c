// Package config 提供统一的配置管理
package config

import (
	"fmt"
	"regexp"
)

var metricNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// MetricsConfig 指标配置
type MetricsConfig struct {
	// Enabled 是否收集 Prometheus 指标
	// 默认值: true
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Namespace 指标名前缀
	// 默认值: "liquiddb"
	Namespace string `json:"namespace" yaml:"namespace"`
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   true,
		Namespace: "liquiddb",
	}
}

// Validate 验证指标配置
func (c *MetricsConfig) Validate() error {
	if c.Enabled && !metricNamePattern.MatchString(c.Namespace) {
		return fmt.Errorf("metrics: invalid namespace %q", c.Namespace)
	}
	return nil
}

// LogConfig 日志配置
type LogConfig struct {
	// Level 日志级别: debug | info | warn | error
	// 默认值: ""（沿用 LIQUIDDB_LOG_LEVEL 或 info）
	Level string `json:"level,omitempty" yaml:"level,omitempty"`

	// Format 日志格式: text | json
	// 默认值: ""（沿用 LIQUIDDB_LOG_FORMAT 或 text）
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{}
}

// Validate 验证日志配置
func (c *LogConfig) Validate() error {
	switch c.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log: unknown level %q", c.Level)
	}
	switch c.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log: unknown format %q", c.Format)
	}
	return nil
}

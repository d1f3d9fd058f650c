package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// EnvAddress 覆盖服务端地址的环境变量
const EnvAddress = "LIQUIDDB_ADDRESS"

// FromJSON 从 JSON 数据创建配置
//
// 未出现的字段保留默认值。
//
// 示例 JSON:
//
//	{
//	  "address": "ws://localhost:8080/db",
//	  "connection": {"heartbeat_timeout": "30s"},
//	  "reconnect": {"max_attempts": 10}
//	}
func FromJSON(data []byte) (*Config, error) {
	cfg := NewConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// FromYAML 从 YAML 数据创建配置
func FromYAML(data []byte) (*Config, error) {
	cfg := NewConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// ToJSON 将配置序列化为 JSON
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// LoadFile 从文件加载配置并验证
//
// 根据扩展名选择格式：.json 或 .yaml/.yml。
// 加载后应用环境变量覆盖。
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg *Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		cfg, err = FromJSON(data)
	case ".yaml", ".yml":
		cfg, err = FromYAML(data)
	default:
		return nil, fmt.Errorf("unsupported config file extension %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}

	ApplyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv 应用环境变量覆盖
func ApplyEnv(cfg *Config) {
	if addr := os.Getenv(EnvAddress); addr != "" {
		cfg.Address = addr
	}
}

// ApplyPreset 应用预设配置
//
// 支持的预设：
//   - "default": 默认配置
//   - "fast": 本地/测试环境（短超时、快速重连）
//   - "patient": 移动网络（长心跳、慢退避）
func ApplyPreset(cfg *Config, presetName string) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	switch presetName {
	case "", "default":
		return nil
	case "fast":
		cfg.Connection.HandshakeTimeout = Duration(2 * time.Second)
		cfg.Connection.HeartbeatTimeout = Duration(3 * time.Second)
		cfg.Reconnect.InitialBackoff = Duration(20 * time.Millisecond)
		cfg.Reconnect.MaxBackoff = Duration(500 * time.Millisecond)
		return nil
	case "patient":
		cfg.Connection.HandshakeTimeout = Duration(15 * time.Second)
		cfg.Connection.HeartbeatTimeout = Duration(60 * time.Second)
		cfg.Reconnect.InitialBackoff = Duration(time.Second)
		cfg.Reconnect.MaxBackoff = Duration(time.Minute)
		return nil
	default:
		return fmt.Errorf("unknown preset: %s", presetName)
	}
}

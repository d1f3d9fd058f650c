package liquiddb

import (
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-liquiddb/config"
	pkgif "github.com/dep2p/go-liquiddb/pkg/interfaces"
)

// Option 用户配置选项函数
type Option func(*options) error

// options 内部选项结构
type options struct {
	// 基础配置（WithConfig），为 nil 时使用默认配置
	base *config.Config

	// 预设
	preset string

	// 服务端地址
	address string

	// 连接配置
	connection struct {
		handshakeTimeout *time.Duration
		heartbeatTimeout *time.Duration
	}

	// 重连配置
	reconnect struct {
		enable      *bool
		maxAttempts *int
		initial     *time.Duration
		max         *time.Duration
	}

	// 指标配置
	metrics struct {
		enable     *bool
		registerer prometheus.Registerer
		instance   string
	}

	// 替换的依赖（测试用）
	clock  clock.Clock
	dialer pkgif.Dialer

	// 用户自定义 Fx 选项
	userFxOptions []fx.Option
}

// newOptions 创建默认选项
func newOptions() *options {
	return &options{}
}

// toConfig 转换为内部配置
//
// 顺序：基础配置 → 环境变量 → 预设 → 显式选项。
func (o *options) toConfig() (*config.Config, error) {
	var cfg *config.Config
	if o.base != nil {
		cfg = o.base.Clone()
	} else {
		cfg = config.NewConfig()
		config.ApplyEnv(cfg)
	}

	// 应用预设
	if o.preset != "" {
		if err := config.ApplyPreset(cfg, o.preset); err != nil {
			return nil, err
		}
	}

	// 覆盖: 地址
	if o.address != "" {
		cfg.Address = o.address
	}

	// 覆盖: 连接
	if o.connection.handshakeTimeout != nil {
		cfg.Connection.HandshakeTimeout = config.Duration(*o.connection.handshakeTimeout)
	}
	if o.connection.heartbeatTimeout != nil {
		cfg.Connection.HeartbeatTimeout = config.Duration(*o.connection.heartbeatTimeout)
	}

	// 覆盖: 重连
	if o.reconnect.enable != nil {
		cfg.Reconnect.Enabled = *o.reconnect.enable
	}
	if o.reconnect.maxAttempts != nil {
		cfg.Reconnect.MaxAttempts = *o.reconnect.maxAttempts
	}
	if o.reconnect.initial != nil {
		cfg.Reconnect.InitialBackoff = config.Duration(*o.reconnect.initial)
	}
	if o.reconnect.max != nil {
		cfg.Reconnect.MaxBackoff = config.Duration(*o.reconnect.max)
	}

	// 覆盖: 指标
	if o.metrics.enable != nil {
		cfg.Metrics.Enabled = *o.metrics.enable
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// ============================================================================
//                              基础选项
// ============================================================================

// WithAddress 设置服务端地址
//
// 默认 ws://localhost:8080/db，可由环境变量 LIQUIDDB_ADDRESS 覆盖。
func WithAddress(address string) Option {
	return func(o *options) error {
		if address == "" {
			return errors.New("address must not be empty")
		}
		o.address = address
		return nil
	}
}

// WithConfig 使用完整配置作为基础
//
// 之后的其他选项仍会覆盖其中的字段。传入的配置不会被修改。
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return errors.New("config must not be nil")
		}
		o.base = cfg
		return nil
	}
}

// WithConfigFile 从 JSON / YAML 文件加载基础配置
func WithConfigFile(path string) Option {
	return func(o *options) error {
		cfg, err := config.LoadFile(path)
		if err != nil {
			return err
		}
		o.base = cfg
		return nil
	}
}

// WithPreset 使用预设（PresetDefault / PresetFast / PresetPatient）
func WithPreset(name string) Option {
	return func(o *options) error {
		if err := config.ApplyPreset(config.NewConfig(), name); err != nil {
			return err
		}
		o.preset = name
		return nil
	}
}

// ============================================================================
//                              连接选项
// ============================================================================

// WithHandshakeTimeout 设置拨号与就绪握手的超时
func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *options) error {
		o.connection.handshakeTimeout = &d
		return nil
	}
}

// WithHeartbeatTimeout 设置心跳超时
//
// 在此时间内没有收到任何服务端消息则判定连接失效。
func WithHeartbeatTimeout(d time.Duration) Option {
	return func(o *options) error {
		o.connection.heartbeatTimeout = &d
		return nil
	}
}

// WithReconnect 启用或禁用自动重连
func WithReconnect(enable bool) Option {
	return func(o *options) error {
		o.reconnect.enable = &enable
		return nil
	}
}

// WithMaxReconnectAttempts 设置单轮重连的最多尝试次数，0 表示不限
func WithMaxReconnectAttempts(n int) Option {
	return func(o *options) error {
		o.reconnect.maxAttempts = &n
		return nil
	}
}

// WithReconnectBackoff 设置重连退避的初始与最大等待
func WithReconnectBackoff(initial, maxBackoff time.Duration) Option {
	return func(o *options) error {
		o.reconnect.initial = &initial
		o.reconnect.max = &maxBackoff
		return nil
	}
}

// ============================================================================
//                              指标选项
// ============================================================================

// WithMetrics 启用或禁用 Prometheus 指标
func WithMetrics(enable bool) Option {
	return func(o *options) error {
		o.metrics.enable = &enable
		return nil
	}
}

// WithMetricsRegisterer 把指标注册到外部 Registerer
//
// instance 作为 client 常量标签，用于区分同一进程内的多个 DB；
// 为空时自动生成。
func WithMetricsRegisterer(reg prometheus.Registerer, instance string) Option {
	return func(o *options) error {
		if reg == nil {
			return errors.New("registerer must not be nil")
		}
		o.metrics.registerer = reg
		o.metrics.instance = instance
		return nil
	}
}

// ============================================================================
//                              高级选项
// ============================================================================

// WithClock 替换时钟（测试中使用 clock.NewMock）
func WithClock(clk clock.Clock) Option {
	return func(o *options) error {
		o.clock = clk
		return nil
	}
}

// WithDialer 替换默认的 WebSocket 拨号器
func WithDialer(d pkgif.Dialer) Option {
	return func(o *options) error {
		o.dialer = d
		return nil
	}
}

// WithFxOption 追加自定义 Fx 选项
func WithFxOption(opts ...fx.Option) Option {
	return func(o *options) error {
		o.userFxOptions = append(o.userFxOptions, opts...)
		return nil
	}
}

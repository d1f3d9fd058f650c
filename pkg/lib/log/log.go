// Package log 提供 LiquidDB 统一日志接口
//
// 基于 Go 标准库 log/slog 封装，提供简洁的日志 API。
// 组件通过 Logger("core/connection") 获取懒加载 logger，
// 每次调用都使用当前的默认 handler，支持运行时切换输出。
//
// 环境变量：
//   - LIQUIDDB_LOG_LEVEL:  debug | info | warn | error（默认 info）
//   - LIQUIDDB_LOG_FORMAT: text | json（默认 text）
package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// 日志级别常量（从 slog 导出，方便使用）
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// 环境变量名
const (
	EnvLevel  = "LIQUIDDB_LOG_LEVEL"
	EnvFormat = "LIQUIDDB_LOG_FORMAT"
)

// 日志格式
const (
	FormatText = "text"
	FormatJSON = "json"
)

// SetDefault 设置默认 logger
func SetDefault(l *slog.Logger) {
	slog.SetDefault(l)
}

// New 创建文本格式的 logger
func New(w io.Writer, opts *slog.HandlerOptions) *slog.Logger {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// NewJSON 创建 JSON 格式的 logger
func NewJSON(w io.Writer, opts *slog.HandlerOptions) *slog.Logger {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// ParseLevel 解析日志级别，空字符串返回 info
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return LevelInfo, nil
	case "debug":
		return LevelDebug, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Configure 按级别和格式重建默认 logger
//
// 示例：
//
//	file, _ := os.OpenFile("liquid.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
//	_ = log.Configure(file, "debug", "json")
func Configure(w io.Writer, level, format string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "", FormatText:
		SetDefault(New(w, opts))
	case FormatJSON:
		SetDefault(NewJSON(w, opts))
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	return nil
}

// ConfigureFromEnv 按环境变量重建默认 logger（输出到 stderr）
func ConfigureFromEnv() error {
	return Configure(os.Stderr, os.Getenv(EnvLevel), os.Getenv(EnvFormat))
}

// ============================================================================
//                              LazyLogger
// ============================================================================

// LazyLogger 懒加载 logger
//
// 使用方式：
//
//	var logger = log.Logger("core/connection")  // 返回 *LazyLogger
//	logger.Info("已连接", "address", addr)      // 动态使用当前的 default logger
type LazyLogger struct {
	component string
}

func (l *LazyLogger) current() *slog.Logger {
	return slog.Default().With("component", l.component)
}

// Debug 输出 Debug 级别日志
func (l *LazyLogger) Debug(msg string, args ...any) {
	l.current().Debug(msg, args...)
}

// Info 输出 Info 级别日志
func (l *LazyLogger) Info(msg string, args ...any) {
	l.current().Info(msg, args...)
}

// Warn 输出 Warn 级别日志
func (l *LazyLogger) Warn(msg string, args ...any) {
	l.current().Warn(msg, args...)
}

// Error 输出 Error 级别日志
func (l *LazyLogger) Error(msg string, args ...any) {
	l.current().Error(msg, args...)
}

// DebugContext 带 context 的 Debug 日志
func (l *LazyLogger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.current().DebugContext(ctx, msg, args...)
}

// WarnContext 带 context 的 Warn 日志
func (l *LazyLogger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.current().WarnContext(ctx, msg, args...)
}

// With 添加额外的属性
func (l *LazyLogger) With(args ...any) *slog.Logger {
	return l.current().With(args...)
}

// Logger 返回带组件名的 LazyLogger
func Logger(component string) *LazyLogger {
	return &LazyLogger{component: component}
}

// ============================================================================
//                              工具函数
// ============================================================================

// TruncateID 安全截取 ID 用于日志显示
func TruncateID(id string, maxLen int) string {
	if len(id) <= maxLen {
		return id
	}
	return id[:maxLen]
}

func init() {
	if err := ConfigureFromEnv(); err != nil {
		_ = Configure(os.Stderr, "info", FormatText)
	}
}

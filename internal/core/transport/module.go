// Package transport 实现双工消息通道
package transport

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-liquiddb/config"
	"github.com/dep2p/go-liquiddb/internal/core/transport/websocket"
	pkgif "github.com/dep2p/go-liquiddb/pkg/interfaces"
	"github.com/dep2p/go-liquiddb/pkg/lib/log"
)

var logger = log.Logger("core/transport")

// ConfigFromUnified 从统一配置创建 WebSocket 配置
func ConfigFromUnified(cfg *config.Config) websocket.Config {
	if cfg == nil {
		return websocket.DefaultConfig()
	}
	return websocket.Config{
		HandshakeTimeout: cfg.Connection.HandshakeTimeout.Duration(),
		WriteTimeout:     cfg.Connection.WriteTimeout.Duration(),
		ReadLimit:        cfg.Connection.ReadLimit,
	}
}

// Module 返回 Fx 模块
//
// 提供:
//   - pkgif.Dialer: WebSocket 拨号器
func Module() fx.Option {
	return fx.Module("transport",
		fx.Provide(ProvideDialer),
	)
}

// ProvideDialer 提供 WebSocket 拨号器
func ProvideDialer(cfg *config.Config) pkgif.Dialer {
	wsCfg := ConfigFromUnified(cfg)
	logger.Debug("创建 WebSocket 拨号器",
		"handshakeTimeout", wsCfg.HandshakeTimeout,
		"writeTimeout", wsCfg.WriteTimeout,
		"readLimit", wsCfg.ReadLimit)
	return websocket.NewDialer(wsCfg)
}

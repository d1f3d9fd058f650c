package connection

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-liquiddb/config"
	"github.com/dep2p/go-liquiddb/internal/core/metrics"
	"github.com/dep2p/go-liquiddb/internal/core/store"
	pkgif "github.com/dep2p/go-liquiddb/pkg/interfaces"
)

// Params Connection 依赖参数
type Params struct {
	fx.In

	Config   *config.Config
	Dialer   pkgif.Dialer
	Tree     *store.Tree
	Registry pkgif.PathRegistry
	EventBus pkgif.EventBus
	Metrics  *metrics.Metrics `optional:"true"`
	Clock    clock.Clock      `optional:"true"`
}

// Module 返回 Fx 模块
//
// 提供:
//   - *Connection: 连接引擎（不自动拨号，由调用方 Connect）
//
// 停止时关闭连接。
func Module() fx.Option {
	return fx.Module("connection",
		fx.Provide(ProvideConnection),
		fx.Invoke(registerLifecycle),
	)
}

// ProvideConnection 创建连接引擎
func ProvideConnection(p Params) (*Connection, error) {
	return New(Deps{
		Config:   p.Config,
		Dialer:   p.Dialer,
		Tree:     p.Tree,
		Registry: p.Registry,
		EventBus: p.EventBus,
		Metrics:  p.Metrics,
		Clock:    p.Clock,
	})
}

// lifecycleInput 生命周期输入参数
type lifecycleInput struct {
	fx.In
	LC   fx.Lifecycle
	Conn *Connection
}

// registerLifecycle 注册生命周期
func registerLifecycle(input lifecycleInput) {
	input.LC.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return input.Conn.Close(ctx)
		},
	})
}

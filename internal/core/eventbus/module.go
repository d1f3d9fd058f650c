// Package eventbus 实现事件总线
package eventbus

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-liquiddb/internal/core/metrics"
	pkgif "github.com/dep2p/go-liquiddb/pkg/interfaces"
)

// ============================================================================
// Fx 模块
// ============================================================================

// Result Fx 模块输出结果
type Result struct {
	fx.Out

	Bus      *Bus
	EventBus pkgif.EventBus
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("eventbus",
		fx.Provide(ProvideEventBus),
		fx.Invoke(registerLifecycle),
		fx.Invoke(watchDropped),
	)
}

// ProvideEventBus 提供 EventBus 实例
func ProvideEventBus() Result {
	bus := NewBus()
	return Result{
		Bus:      bus,
		EventBus: bus,
	}
}

// lifecycleInput 生命周期输入参数
type lifecycleInput struct {
	fx.In
	LC  fx.Lifecycle
	Bus *Bus
}

// registerLifecycle 注册生命周期：停止时关闭所有订阅
func registerLifecycle(input lifecycleInput) {
	input.LC.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return input.Bus.Close()
		},
	})
}

// watchInput 指标输入参数
type watchInput struct {
	fx.In
	Bus     *Bus
	Metrics *metrics.Metrics `optional:"true"`
}

// watchDropped 把慢消费者丢弃计数导出为指标
func watchDropped(input watchInput) error {
	return input.Metrics.WatchDroppedEvents(input.Bus.Dropped)
}

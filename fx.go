package liquiddb

import (
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-liquiddb/config"
	"github.com/dep2p/go-liquiddb/internal/core/connection"
	"github.com/dep2p/go-liquiddb/internal/core/eventbus"
	"github.com/dep2p/go-liquiddb/internal/core/metrics"
	"github.com/dep2p/go-liquiddb/internal/core/registry"
	"github.com/dep2p/go-liquiddb/internal/core/store"
	"github.com/dep2p/go-liquiddb/internal/core/transport"
	pkgif "github.com/dep2p/go-liquiddb/pkg/interfaces"
	"github.com/dep2p/go-liquiddb/pkg/lib/log"
)

var fxLogger = log.Logger("liquiddb/fx")

// buildFxApp 构建 Fx 应用
//
// 每个 DB 一个独立的 App，组件之间不共享任何状态。
//
// 加载顺序（按依赖）：
//  1. 配置、EventBus、树镜像、订阅表
//  2. 指标（可选）
//  3. 传输（默认 WebSocket，或 WithDialer 注入）
//  4. Connection
func buildFxApp(o *options, cfg *config.Config, db *DB) (*fx.App, error) {
	// ════════════════════════════════════════════════════════════════════════
	// 1. 基础组件（必须）
	// ════════════════════════════════════════════════════════════════════════
	modules := []fx.Option{
		fx.Supply(cfg),

		eventbus.Module(), // 生命周期事件
		store.Module(),    // 树镜像
		registry.Module(), // 订阅表
	}

	// ════════════════════════════════════════════════════════════════════════
	// 2. 指标
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules, metrics.Module())
	if o.metrics.registerer != nil {
		instance := o.metrics.instance
		if instance == "" {
			instance = log.TruncateID(uuid.NewString(), 8)
		}
		reg := o.metrics.registerer
		modules = append(modules,
			fx.Provide(func() prometheus.Registerer { return reg }),
			fx.Supply(metrics.Instance(instance)),
		)
	}

	// ════════════════════════════════════════════════════════════════════════
	// 3. 传输层
	// ════════════════════════════════════════════════════════════════════════
	if o.dialer != nil {
		dialer := o.dialer
		modules = append(modules, fx.Provide(func() pkgif.Dialer { return dialer }))
	} else {
		modules = append(modules, transport.Module())
	}

	// ════════════════════════════════════════════════════════════════════════
	// 4. 连接引擎
	// ════════════════════════════════════════════════════════════════════════
	if o.clock != nil {
		clk := o.clock
		modules = append(modules, fx.Provide(func() clock.Clock { return clk }))
	}
	modules = append(modules, connection.Module())

	// ════════════════════════════════════════════════════════════════════════
	// 5. 用户扩展（Fx Options）
	// ════════════════════════════════════════════════════════════════════════
	if len(o.userFxOptions) > 0 {
		modules = append(modules, o.userFxOptions...)
	}

	// ════════════════════════════════════════════════════════════════════════
	// 6. DB 组件注入
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules, fx.Invoke(injectComponents(db)))

	// ════════════════════════════════════════════════════════════════════════
	// 7. Fx 配置
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules,
		// 禁用 Fx 日志输出（避免干扰用户日志）
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
	)

	app := fx.New(modules...)
	if err := app.Err(); err != nil {
		return nil, fmt.Errorf("build fx app: %w", err)
	}
	fxLogger.Debug("Fx 应用已构建", "address", cfg.Address, "metrics", cfg.Metrics.Enabled)
	return app, nil
}

// ════════════════════════════════════════════════════════════════════════════
// 组件注入辅助函数
// ════════════════════════════════════════════════════════════════════════════

// dbInjectParams DB 组件注入参数
type dbInjectParams struct {
	fx.In

	Connection *connection.Connection
	Registry   pkgif.PathRegistry
	EventBus   pkgif.EventBus
	Metrics    *metrics.Metrics `optional:"true"`
}

// injectComponents 创建 DB 组件注入函数
func injectComponents(db *DB) interface{} {
	return func(p dbInjectParams) {
		db.conn = p.Connection
		db.registry = p.Registry
		db.bus = p.EventBus
		db.metrics = p.Metrics
	}
}

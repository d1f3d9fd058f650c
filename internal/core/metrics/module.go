package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-liquiddb/config"
)

// Params Metrics 依赖参数
type Params struct {
	fx.In

	Config     *config.Config
	Registerer prometheus.Registerer `optional:"true"`
	Instance   Instance              `optional:"true"`
}

// Module 返回 Fx 模块
//
// 提供:
//   - *Metrics: 指标集合（禁用时为 nil，方法仍可安全调用）
func Module() fx.Option {
	return fx.Module("metrics",
		fx.Provide(ProvideMetrics),
	)
}

// ProvideMetrics 创建指标集合
func ProvideMetrics(p Params) (*Metrics, error) {
	return New(p.Config.Metrics, p.Registerer, p.Instance)
}

package store

import (
	"go.uber.org/fx"
)

// Module 返回 Fx 模块
//
// 提供:
//   - *Tree: 每个 DB 独立的树镜像
func Module() fx.Option {
	return fx.Module("store",
		fx.Provide(New),
	)
}

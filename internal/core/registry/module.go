package registry

import (
	"go.uber.org/fx"

	pkgif "github.com/dep2p/go-liquiddb/pkg/interfaces"
)

// Result Fx 模块输出结果
type Result struct {
	fx.Out

	Registry     *Registry
	PathRegistry pkgif.PathRegistry
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("registry",
		fx.Provide(ProvideRegistry),
	)
}

// ProvideRegistry 提供订阅表
func ProvideRegistry() Result {
	r := New()
	return Result{Registry: r, PathRegistry: r}
}

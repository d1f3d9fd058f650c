// Package eventbus 实现进程内事件总线
//
// 提供类型安全的事件发布/订阅机制，承载连接生命周期事件
// （types.EvtConnected / EvtDisconnected / EvtStateChanged）：
//   - 多订阅者
//   - 缓冲区配置（BufSize）
//   - 发射器引用计数
//   - 有状态模式（Stateful）
//
// # 快速开始
//
//	bus := eventbus.NewBus()
//
//	sub, _ := bus.Subscribe(new(types.EvtConnected))
//	defer sub.Close()
//
//	go func() {
//	    for evt := range sub.Out() {
//	        e := evt.(types.EvtConnected)
//	        // 处理事件
//	    }
//	}()
//
//	em, _ := bus.Emitter(new(types.EvtConnected))
//	defer em.Close()
//	em.Emit(types.EvtConnected{...})
//
// # 与 PathRegistry 的区别
//
// 树操作（insert/update/delete）不走事件总线：总线在缓冲区满时丢弃事件，
// 而树操作必须按到达顺序逐条送达，由 internal/core/registry 负责。
//
// # 并发安全
//
//   - 订阅/取消订阅：RWMutex 保护
//   - 发射器引用计数：atomic.Int32
//   - 通道关闭：closeOnce 防止重复；Bus.Close 关闭全部订阅
package eventbus

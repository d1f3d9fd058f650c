// Package store 实现客户端树镜像与操作分类
//
// Tree 保存客户端已知的整棵树（服务端状态的最终一致副本），
// 把服务端广播的原始变更（在路径 P 处写入值或删除子树）转换为
// 已分类的操作序列（insert/update/delete）：
//
//   - 变更只影响 P 及其后代，祖先不会产生合成操作
//   - 操作按先序排列（父节点在前，同级 key 按字典序）
//   - 删除子树为每个受影响的后代产生 delete 操作，携带旧值
//   - 值完全相同的写入不产生操作
//   - 列表是原子值，路径不进入列表内部
//
// # 重同步
//
// 重连握手收到整树快照后，Reset 用快照替换镜像，
// 并返回旧镜像与快照之间的差异操作，让仍然注册的订阅看到断线期间错过的变化。
//
// # 并发安全
//
// Tree 内部使用 RWMutex；返回的值都是副本，调用方可以自由持有。
package store

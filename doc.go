// Package liquiddb 提供共享 JSON 树的实时同步客户端
//
// 服务端维护一棵按路径寻址的树，客户端通过一条持久的双向连接
// 读写任意路径，并订阅路径上的插入、更新与删除。
//
// # 核心概念
//
//   - DB: 入口，拥有一个 Connection 与一张订阅表
//   - Reference: 绑定到一个路径的句柄，提供读写与订阅
//   - Operation: 已分类的树变更（insert / update / delete）
//
// # 快速开始
//
//	db, err := liquiddb.Open(ctx, liquiddb.WithAddress("ws://localhost:8080/db"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Shutdown(context.Background())
//
//	ref, _ := db.Ref("foo.bar")
//	op, err := ref.Set(ctx, 5) // 服务端回显后返回，op.Kind == liquiddb.OpInsert
//
//	unsub, _ := db.Data(func(op *liquiddb.Operation) {
//	    fmt.Println(op.Kind, op.Path, op.Interface())
//	})
//	defer unsub()
//
// # 连接与重连
//
// 握手完成（收到 ready）后才视为已连接。服务端周期发送 ping，
// 超过心跳超时没有收到任何消息时客户端自动重连。断线期间的写入
// 排队，重连后按原顺序重放；每个写入携带客户端生成的 ID，
// 服务端据此去重，保证重放只生效一次。
//
// 重连后客户端用服务端快照替换本地镜像，并把断线期间错过的变更
// 作为普通操作派发给订阅者。
//
// # 订阅
//
// 订阅默认匹配路径本身及其所有后代：foo 上的订阅在 foo.bar 变更时
// 收到 foo.bar 上的操作。Exact() 只匹配路径本身，整树引用匹配所有操作。
// 回调在单独的派发协程中按到达顺序执行。
package liquiddb

package liquiddb

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dep2p/go-liquiddb/config"
	"github.com/dep2p/go-liquiddb/internal/core/connection"
	"github.com/dep2p/go-liquiddb/internal/core/metrics"
	pkgif "github.com/dep2p/go-liquiddb/pkg/interfaces"
	"github.com/dep2p/go-liquiddb/pkg/lib/log"
	"github.com/dep2p/go-liquiddb/pkg/types"
)

var logger = log.Logger("liquiddb")

const (
	// initializeTimeout 初始化超时（Fx App Start）
	initializeTimeout = 30 * time.Second

	// hookBuffer 生命周期回调的事件缓冲
	hookBuffer = 16
)

// ════════════════════════════════════════════════════════════════════════════
//                              DB
// ════════════════════════════════════════════════════════════════════════════

// DB 实时树数据库客户端
//
// 每个 DB 拥有独立的 Connection、订阅表、树镜像、事件总线与指标，
// 同一进程内的多个 DB 互不影响。
//
// 生命周期：
//
//	New → Connect → ... → Close → Reconnect → ... → Shutdown
//
// Close 可逆（Reconnect 恢复），Shutdown 释放全部资源后不可再用。
type DB struct {
	cfg *config.Config
	app *fx.App

	// 由 Fx 注入
	conn     *connection.Connection
	registry pkgif.PathRegistry
	bus      pkgif.EventBus
	metrics  *metrics.Metrics

	root *Reference

	mu       sync.Mutex
	shutdown bool
}

// New 创建 DB，不拨号
//
// 示例：
//
//	db, err := liquiddb.New(liquiddb.WithAddress("ws://localhost:8080/db"))
//	if err != nil {
//	    return err
//	}
//	defer db.Shutdown(context.Background())
//	if _, err := db.Connect(ctx); err != nil {
//	    return err
//	}
func New(opts ...Option) (*DB, error) {
	o := newOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	cfg, err := o.toConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Log.Level != "" || cfg.Log.Format != "" {
		if err := log.Configure(os.Stderr, cfg.Log.Level, cfg.Log.Format); err != nil {
			return nil, fmt.Errorf("configure log: %w", err)
		}
	}

	db := &DB{cfg: cfg}
	db.root = &Reference{db: db, path: types.RootPath}

	db.app, err = buildFxApp(o, cfg, db)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), initializeTimeout)
	defer cancel()
	if err := db.app.Start(ctx); err != nil {
		logger.Error("DB 初始化失败", "error", err)
		return nil, fmt.Errorf("initialize failed: %w", err)
	}

	logger.Debug("DB 已创建", "address", cfg.Address)
	return db, nil
}

// Open 快捷函数：New + Connect
func Open(ctx context.Context, opts ...Option) (*DB, error) {
	db, err := New(opts...)
	if err != nil {
		return nil, err
	}
	if _, err := db.Connect(ctx); err != nil {
		_ = db.Shutdown(context.Background())
		return nil, fmt.Errorf("connect: %w", err)
	}
	return db, nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              生命周期
// ════════════════════════════════════════════════════════════════════════════

// Connect 连接服务端，握手完成后返回
//
// 首次连接只尝试一次，失败直接返回错误；之后的连接按退避策略重试。
func (db *DB) Connect(ctx context.Context) (*DB, error) {
	if err := db.checkShutdown(); err != nil {
		return nil, err
	}
	if err := db.conn.Connect(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

// Close 关闭连接
//
// 返回后不会再开始任何订阅回调。订阅与未确认的写入保留，
// Reconnect 后继续生效。Close 可以重复调用。
func (db *DB) Close(ctx context.Context) error {
	if db.checkShutdown() != nil {
		return nil
	}
	return db.conn.Close(ctx)
}

// Reconnect 拆除当前会话并重新连接
//
// 也用于 Close 之后恢复。断线期间发起的写入在重连后按原顺序重放。
func (db *DB) Reconnect(ctx context.Context) (*DB, error) {
	if err := db.checkShutdown(); err != nil {
		return nil, err
	}
	if err := db.conn.Reconnect(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

// Shutdown 关闭连接并释放全部资源
//
// 停止 Fx 应用：关闭 Connection 与事件总线，生命周期回调随之结束。
func (db *DB) Shutdown(ctx context.Context) error {
	db.mu.Lock()
	if db.shutdown {
		db.mu.Unlock()
		return nil
	}
	db.shutdown = true
	db.mu.Unlock()

	if err := db.app.Stop(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Debug("DB 已释放", "address", db.cfg.Address)
	return nil
}

func (db *DB) checkShutdown() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.shutdown {
		return ErrShutdown
	}
	return nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              引用
// ════════════════════════════════════════════════════════════════════════════

// Ref 创建绑定到点分路径的引用
//
// 空字符串或含空段时返回 ErrInvalidPath，不产生任何网络交互。
func (db *DB) Ref(path string) (*Reference, error) {
	p, err := types.ParsePath(path)
	if err != nil {
		return nil, err
	}
	return &Reference{db: db, path: p}, nil
}

// RefPath 创建绑定到段列表路径的引用
//
// 空列表（包括 nil）或含空段时返回 ErrInvalidPath。
func (db *DB) RefPath(segments ...string) (*Reference, error) {
	p, err := types.NewPath(segments...)
	if err != nil {
		return nil, err
	}
	return &Reference{db: db, path: p}, nil
}

// Root 返回整树引用
//
// 整树引用上的订阅匹配树上所有操作。
func (db *DB) Root() *Reference {
	return db.root
}

// Set 替换整棵树
func (db *DB) Set(ctx context.Context, v any) (*Operation, error) {
	return db.root.Set(ctx, v)
}

// Delete 删除整棵树
func (db *DB) Delete(ctx context.Context) (*Operation, error) {
	return db.root.Delete(ctx)
}

// Value 返回整棵树的 Go 表示
func (db *DB) Value(ctx context.Context) (any, bool, error) {
	return db.root.Value(ctx)
}

// Data 订阅整棵树上的所有操作
func (db *DB) Data(handler func(*Operation)) (Unsubscribe, error) {
	return db.root.On(OpAny, handler)
}

// ════════════════════════════════════════════════════════════════════════════
//                              生命周期回调
// ════════════════════════════════════════════════════════════════════════════

// OnConnected 注册握手完成回调（包括每次重连成功）
//
// 回调在独立协程中按事件顺序执行。
func (db *DB) OnConnected(cb func(EvtConnected)) (Unsubscribe, error) {
	return subscribeEvent(db, new(types.EvtConnected), func(e interface{}) {
		cb(e.(types.EvtConnected))
	})
}

// OnDisconnected 注册会话丢失或关闭回调
//
// 显式 Close 时事件的 Reason 为 nil。
func (db *DB) OnDisconnected(cb func(EvtDisconnected)) (Unsubscribe, error) {
	return subscribeEvent(db, new(types.EvtDisconnected), func(e interface{}) {
		cb(e.(types.EvtDisconnected))
	})
}

func subscribeEvent(db *DB, eventType interface{}, deliver func(interface{})) (Unsubscribe, error) {
	if err := db.checkShutdown(); err != nil {
		return nil, err
	}
	sub, err := db.bus.Subscribe(eventType, pkgif.BufSize(hookBuffer))
	if err != nil {
		return nil, err
	}
	go func() {
		for e := range sub.Out() {
			deliver(e)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { _ = sub.Close() })
	}, nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              基本信息
// ════════════════════════════════════════════════════════════════════════════

// State 返回当前连接状态
func (db *DB) State() ConnectionState {
	return db.conn.State()
}

// Address 返回服务端地址
func (db *DB) Address() string {
	return db.conn.Address()
}

// Config 返回生效的配置副本
func (db *DB) Config() *config.Config {
	return db.cfg.Clone()
}

// Pending 返回等待服务端确认的写入数
func (db *DB) Pending() int {
	return db.conn.Pending()
}

// Snapshot 返回本地镜像中的整树副本（不经过网络）
func (db *DB) Snapshot() *structpb.Value {
	return db.conn.Tree().Snapshot()
}

// Gatherer 返回指标采集器，指标被禁用时返回 nil
func (db *DB) Gatherer() prometheus.Gatherer {
	return db.metrics.Gatherer()
}

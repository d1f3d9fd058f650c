// Package main 提供 liquidctl 命令行客户端
//
// 用法：
//
//	liquidctl [flags] get <path>
//	liquidctl [flags] set <path> <json>
//	liquidctl [flags] delete [path]
//	liquidctl [flags] watch [path]
//
// path 使用点分形式（foo.bar）；delete 与 watch 省略 path 时作用于整棵树。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dep2p/go-liquiddb"
	"github.com/dep2p/go-liquiddb/pkg/lib/log"
)

var logger = log.Logger("liquidctl")

// ═══════════════════════════════════════════════════════════════════════════
// 命令行参数
// ═══════════════════════════════════════════════════════════════════════════
var (
	address     = flag.String("addr", "", "服务端地址（默认 $LIQUIDDB_ADDRESS 或 ws://localhost:8080/db）")
	configFile  = flag.String("config", "", "配置文件路径（.json / .yaml）")
	preset      = flag.String("preset", "", "预设配置 (default/fast/patient)")
	timeout     = flag.Duration("timeout", 10*time.Second, "get/set/delete 的超时")
	exact       = flag.Bool("exact", false, "watch 只匹配路径本身")
	metricsAddr = flag.String("metrics-addr", "", "watch 时暴露 /metrics 的监听地址")
	logLevel    = flag.String("log-level", "warn", "日志级别 (debug/info/warn/error)")
	showVersion = flag.Bool("version", false, "显示版本信息")
)

var errUsage = errors.New("usage: liquidctl [flags] <get|set|delete|watch> [path] [value]")

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()

	if *showVersion {
		fmt.Println(liquiddb.VersionInfo())
		return nil
	}
	if err := log.Configure(os.Stderr, *logLevel, ""); err != nil {
		return err
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		return errUsage
	}

	opts, err := buildOptions()
	if err != nil {
		return fmt.Errorf("配置错误: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := liquiddb.New(opts...)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = db.Shutdown(shutdownCtx)
	}()

	connectCtx, connectCancel := context.WithTimeout(ctx, *timeout)
	defer connectCancel()
	if _, err := db.Connect(connectCtx); err != nil {
		return fmt.Errorf("连接 %s 失败: %w", db.Address(), err)
	}
	logger.Debug("已连接", "address", db.Address())

	switch args[0] {
	case "get":
		return cmdGet(ctx, db, args[1:])
	case "set":
		return cmdSet(ctx, db, args[1:])
	case "delete":
		return cmdDelete(ctx, db, args[1:])
	case "watch":
		return cmdWatch(ctx, db, args[1:])
	default:
		return fmt.Errorf("unknown command %q: %w", args[0], errUsage)
	}
}

// buildOptions 由命令行参数构建选项
func buildOptions() ([]liquiddb.Option, error) {
	var opts []liquiddb.Option
	if *configFile != "" {
		opts = append(opts, liquiddb.WithConfigFile(*configFile))
	}
	if *preset != "" {
		opts = append(opts, liquiddb.WithPreset(*preset))
	}
	if *address != "" {
		opts = append(opts, liquiddb.WithAddress(*address))
	}
	return opts, nil
}

// ref 解析可选路径，省略时返回整树引用
func ref(db *liquiddb.DB, args []string, optional bool) (*liquiddb.Reference, error) {
	if len(args) == 0 {
		if optional {
			return db.Root(), nil
		}
		return nil, errUsage
	}
	return db.Ref(args[0])
}

// ============================================================================
//                              子命令
// ============================================================================

func cmdGet(ctx context.Context, db *liquiddb.DB, args []string) error {
	r, err := ref(db, args, false)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	v, exists, err := r.Value(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%s: not found", r)
	}
	return printJSON(v)
}

func cmdSet(ctx context.Context, db *liquiddb.DB, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	r, err := db.Ref(args[0])
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	op, err := r.Set(ctx, parseValue(args[1]))
	if err != nil {
		return err
	}
	printOperation(op)
	return nil
}

func cmdDelete(ctx context.Context, db *liquiddb.DB, args []string) error {
	r, err := ref(db, args, true)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	op, err := r.Delete(ctx)
	if err != nil {
		return err
	}
	printOperation(op)
	return nil
}

func cmdWatch(ctx context.Context, db *liquiddb.DB, args []string) error {
	r, err := ref(db, args, true)
	if err != nil {
		return err
	}

	var subOpts []liquiddb.SubscribeOption
	if *exact {
		subOpts = append(subOpts, liquiddb.Exact())
	}
	unsub, err := r.On(liquiddb.OpAny, printOperation, subOpts...)
	if err != nil {
		return err
	}
	defer unsub()

	unsubD, err := db.OnDisconnected(func(e liquiddb.EvtDisconnected) {
		if e.Reason != nil {
			fmt.Fprintf(os.Stderr, "连接断开: %v，正在重连\n", e.Reason)
		}
	})
	if err != nil {
		return err
	}
	defer unsubD()

	if *metricsAddr != "" {
		if g := db.Gatherer(); g != nil {
			srv := &http.Server{
				Addr:              *metricsAddr,
				Handler:           promhttp.HandlerFor(g, promhttp.HandlerOpts{}),
				ReadHeaderTimeout: 5 * time.Second,
			}
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Warn("指标服务退出", "err", err)
				}
			}()
			defer srv.Close()
		}
	}

	fmt.Fprintf(os.Stderr, "正在监听 %q，按 Ctrl+C 退出\n", r.String())
	<-ctx.Done()
	return nil
}

// ============================================================================
//                              输出
// ============================================================================

// parseValue 按 JSON 解析参数，失败时视为字符串
func parseValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func printOperation(op *liquiddb.Operation) {
	if op == nil {
		fmt.Println("no change")
		return
	}
	path := op.Path.String()
	if path == "" {
		path = "<root>"
	}
	data, err := json.Marshal(op.Interface())
	if err != nil {
		data = []byte("?")
	}
	fmt.Printf("%-6s %s %s\n", op.Kind, path, data)
}

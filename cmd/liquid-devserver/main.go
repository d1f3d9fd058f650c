// Package main 提供本地开发用的树服务端
//
// 只保存在内存中，不做认证，用于配合 liquidctl 或客户端测试：
//
//	liquid-devserver -addr :8080 -path /db
//	liquidctl -addr ws://localhost:8080/db watch
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

	"github.com/dep2p/go-liquiddb"
	"github.com/dep2p/go-liquiddb/internal/devserver"
	"github.com/dep2p/go-liquiddb/pkg/lib/log"
)

var logger = log.Logger("devserver/cmd")

var (
	listenAddr  = flag.String("addr", ":8080", "监听地址")
	path        = flag.String("path", "/db", "WebSocket 路径")
	pingEvery   = flag.Duration("ping", 5*time.Second, "ping 间隔（0 = 不发送）")
	dedupSize   = flag.Int("dedup", 65536, "记忆的写入 ID 数量")
	logLevel    = flag.String("log-level", "info", "日志级别 (debug/info/warn/error)")
	logFormat   = flag.String("log-format", "text", "日志格式 (text/json)")
	showVersion = flag.Bool("version", false, "显示版本信息")
)

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
	if err := log.Configure(os.Stderr, *logLevel, *logFormat); err != nil {
		return err
	}

	cfg := devserver.DefaultConfig()
	cfg.PingInterval = *pingEvery
	cfg.DedupSize = *dedupSize
	srv := devserver.New(cfg)

	mux := http.NewServeMux()
	mux.Handle(*path, srv)
	httpSrv := &http.Server{
		Addr:              *listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.ListenAndServe()
	}()
	logger.Info("开发服务端已启动", "addr", *listenAddr, "path", *path, "ping", *pingEvery)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("正在关闭")
	srv.Close()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// Package main 提供 debugbridge 命令行入口
//
// 以前端身份启动连接层并持续打印可连接的调试目标。Embedded 模式
// 下还会挂一个演示用播报器，便于单进程观察发现流程。
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dep2p/go-debugbridge"
	logpkg "github.com/dep2p/go-debugbridge/pkg/lib/log"
	"github.com/dep2p/go-debugbridge/pkg/types"
)

var logger = logpkg.Logger("debugbridge/cmd")

// ============================================================================
//                              命令行参数
// ============================================================================

var (
	remote   = flag.String("remote", "", "远程目标端点（为空使用同主机嵌入式模式）")
	name     = flag.String("name", "", "远程目标展示名")
	announce = flag.String("announce", "", "覆盖播报通道名")
	withDemo = flag.Bool("demo-target", false, "嵌入式模式下启动一个演示播报器")
	logLevel = flag.String("log-level", "info", "日志级别 (debug/info/warn/error)")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "debugbridge: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configureLogging(*logLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signalCh
		fmt.Println("\n收到中断信号，准备关闭...")
		cancel()
	}()

	opts := buildOptions()
	bridge, err := debugbridge.New(opts...)
	if err != nil {
		return fmt.Errorf("创建桥接器失败: %w", err)
	}
	defer func() { _ = bridge.Close() }()

	unsub := bridge.Discovery().OnConnectionsChanged(printConnections)
	defer unsub()

	if err := bridge.Start(ctx); err != nil {
		return fmt.Errorf("启动失败: %w", err)
	}
	logger.Info("连接层已启动", "version", debugbridge.Version)

	if *withDemo && *remote == "" {
		announcer, aerr := bridge.NewAnnouncer("演示目标")
		if aerr != nil {
			return fmt.Errorf("创建演示播报器失败: %w", aerr)
		}
		if aerr := announcer.Start(ctx); aerr != nil {
			return fmt.Errorf("启动演示播报器失败: %w", aerr)
		}
		defer func() { _ = announcer.Stop() }()
		logger.Info("演示播报器已启动", "token", announcer.Token())
	}

	printConnections(bridge.Discovery().AvailableConnections())

	<-ctx.Done()

	snap := bridge.Counters()
	logger.Info("运行计数",
		"droppedAnnouncements", snap.DroppedAnnouncements,
		"heartbeatTimeouts", snap.HeartbeatTimeouts,
		"expiredPeers", snap.ExpiredPeers)
	return nil
}

// buildOptions 把命令行参数折叠成桥接器选项
func buildOptions() []debugbridge.Option {
	var opts []debugbridge.Option
	if *remote != "" {
		opts = append(opts, debugbridge.WithRemoteMode(*remote, *name))
	}
	if *announce != "" {
		opts = append(opts, debugbridge.WithAnnounceChannel(*announce))
	}
	return opts
}

// printConnections 打印当前可连接目标集合
func printConnections(conns []types.AvailableConnection) {
	if len(conns) == 0 {
		fmt.Printf("[%s] 无可连接目标\n", time.Now().Format("15:04:05"))
		return
	}
	fmt.Printf("[%s] 可连接目标 (%d):\n", time.Now().Format("15:04:05"), len(conns))
	for _, c := range conns {
		fmt.Printf("  - %s  %s (%s)\n", c.ID, c.Name, c.Mode)
	}
}

// configureLogging 按参数设置日志级别
func configureLogging(level string) {
	switch level {
	case "debug":
		logpkg.SetOutputWithLevel(os.Stderr, logpkg.LevelDebug)
	case "warn":
		logpkg.SetOutputWithLevel(os.Stderr, logpkg.LevelWarn)
	case "error":
		logpkg.SetOutputWithLevel(os.Stderr, logpkg.LevelError)
	default:
		logpkg.SetOutputWithLevel(os.Stderr, logpkg.LevelInfo)
	}
}

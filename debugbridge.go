package debugbridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/multierr"

	"github.com/dep2p/go-debugbridge/internal/config"
	corebus "github.com/dep2p/go-debugbridge/internal/core/bus"
	"github.com/dep2p/go-debugbridge/internal/core/discovery"
	"github.com/dep2p/go-debugbridge/internal/core/metrics"
	busif "github.com/dep2p/go-debugbridge/pkg/interfaces/bus"
	discoveryif "github.com/dep2p/go-debugbridge/pkg/interfaces/discovery"
	transportif "github.com/dep2p/go-debugbridge/pkg/interfaces/transport"
	logpkg "github.com/dep2p/go-debugbridge/pkg/lib/log"
	"github.com/dep2p/go-debugbridge/pkg/types"
)

var logger = logpkg.Logger("debugbridge")

// Version 当前版本
const Version = "v0.1.0"

// 生命周期超时配置
const (
	// startTimeout 启动超时（Fx App Start）
	startTimeout = 30 * time.Second

	// stopTimeout 停止超时（Fx App Stop）
	stopTimeout = 10 * time.Second
)

// ============================================================================
//                              桥接器状态
// ============================================================================

// bridgeState 桥接器生命周期状态
type bridgeState int

const (
	stateIdle bridgeState = iota
	stateRunning
	stateClosed
)

// ============================================================================
//                              Bridge 门面
// ============================================================================

// Bridge 连接层门面
//
// 组装发现服务、传输工厂与同主机广播总线，通过 Fx 管理内部组件
// 的装配与生命周期。一个进程通常只需要一个 Bridge 实例。
type Bridge struct {
	cfg      *config.Config
	opts     *options
	counters *metrics.Counters

	// broker 进程内总线；注入了外部工厂或 Remote 模式时为 nil
	broker *corebus.Broker
	bus    busif.Factory

	app       *fx.App
	discovery discoveryif.Service
	transport transportif.Factory

	mu         sync.Mutex
	state      bridgeState
	announcers []*discovery.Announcer
}

// New 创建桥接器
//
// 创建即完成内部组件装配；发现服务在 Start 后开始工作。
func New(opts ...Option) (*Bridge, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("应用选项失败: %w", err)
		}
	}

	cfg, err := o.buildConfig()
	if err != nil {
		return nil, err
	}

	b := &Bridge{
		cfg:      cfg,
		opts:     o,
		counters: metrics.NewCounters(),
	}

	// Embedded 模式缺省使用进程内广播总线
	b.bus = o.busFactory
	if b.bus == nil && cfg.Mode == types.ModeEmbedded {
		b.broker = corebus.NewBroker()
		b.bus = b.broker.Factory()
		o.busFactory = b.bus
	}

	handles := &bridgeHandles{}
	app := buildFxApp(cfg, o, b.counters, handles)
	if err := app.Err(); err != nil {
		return nil, fmt.Errorf("组件装配失败: %w", err)
	}
	b.app = app
	b.discovery = handles.Discovery
	b.transport = handles.Transport

	logger.Info("桥接器已创建", "mode", cfg.Mode, "version", Version)
	return b, nil
}

// ============================================================================
//                              生命周期
// ============================================================================

// Start 启动桥接器
//
// 启动发现服务（Embedded 模式开始监听播报通道并周期清扫；Remote
// 模式合成静态目标记录）。重复启动无副作用。
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	switch b.state {
	case stateRunning:
		b.mu.Unlock()
		return nil
	case stateClosed:
		b.mu.Unlock()
		return ErrBridgeClosed
	}
	b.state = stateRunning
	b.mu.Unlock()

	startCtx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()

	if err := b.app.Start(startCtx); err != nil {
		b.mu.Lock()
		b.state = stateIdle
		b.mu.Unlock()
		return fmt.Errorf("启动失败: %w", err)
	}

	logger.Info("桥接器已启动", "mode", b.cfg.Mode)
	return nil
}

// Close 关闭桥接器
//
// 停止所有未停止的播报器、发现服务与进程内总线。幂等。
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.state == stateClosed {
		b.mu.Unlock()
		return nil
	}
	wasRunning := b.state == stateRunning
	b.state = stateClosed
	announcers := b.announcers
	b.announcers = nil
	b.mu.Unlock()

	var errs error
	for _, a := range announcers {
		errs = multierr.Append(errs, a.Stop())
	}

	if wasRunning {
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		errs = multierr.Append(errs, b.app.Stop(stopCtx))
		cancel()
	}

	if b.broker != nil {
		errs = multierr.Append(errs, b.broker.Close())
	}

	logger.Info("桥接器已关闭")
	return errs
}

// ============================================================================
//                              服务访问
// ============================================================================

// Discovery 返回连接发现服务
func (b *Bridge) Discovery() discoveryif.Service {
	return b.discovery
}

// NewTransport 构造一个尚未连接的传输实例
//
// 按配置模式产出总线传输或 socket 传输。传输实例按单次物理连接
// 使用，Closed 之后重连应再次调用本方法取新实例。
func (b *Bridge) NewTransport() transportif.Transport {
	return b.transport()
}

// NewAnnouncer 创建目标侧自我播报器
//
// 仅 Embedded 模式可用。播报器由调用方 Start；Bridge 关闭时会
// 停止所有尚未停止的播报器。
func (b *Bridge) NewAnnouncer(name string) (discoveryif.Announcer, error) {
	if b.bus == nil {
		return nil, fmt.Errorf("播报器需要总线工厂（仅 Embedded 模式可用）")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == stateClosed {
		return nil, ErrBridgeClosed
	}

	var aopts []discovery.AnnouncerOption
	if b.opts.clk != nil {
		aopts = append(aopts, discovery.WithAnnouncerClock(b.opts.clk))
	}
	a := discovery.NewAnnouncer(name, b.cfg.Discovery, b.bus, aopts...)
	b.announcers = append(b.announcers, a)
	return a, nil
}

// CounterSnapshot 运行计数快照
type CounterSnapshot struct {
	// DroppedAnnouncements 被丢弃的无效播报数
	DroppedAnnouncements int64

	// HeartbeatTimeouts 心跳超时断开次数
	HeartbeatTimeouts int64

	// ExpiredPeers 过期移除的目标数
	ExpiredPeers int64
}

// Counters 返回运行计数快照
func (b *Bridge) Counters() CounterSnapshot {
	return CounterSnapshot{
		DroppedAnnouncements: b.counters.DroppedAnnouncements(),
		HeartbeatTimeouts:    b.counters.HeartbeatTimeouts(),
		ExpiredPeers:         b.counters.ExpiredPeers(),
	}
}

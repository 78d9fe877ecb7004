package debugbridge

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-debugbridge/internal/config"
	busif "github.com/dep2p/go-debugbridge/pkg/interfaces/bus"
	"github.com/dep2p/go-debugbridge/pkg/types"
)

// Option 用户配置选项函数
type Option func(*options) error

// options 内部选项结构
type options struct {
	// 连接模式配置
	mode types.ConnectionMode

	// Remote 模式目标
	remoteEndpoint string
	remoteName     string

	// 发现配置
	announceChannel  string
	announceInterval time.Duration
	expireAfter      time.Duration

	// 传输配置
	heartbeatInterval time.Duration
	pongTimeout       time.Duration
	handshakeTimeout  time.Duration

	// 注入点（测试用）
	busFactory busif.Factory
	clk        clock.Clock
}

// defaultOptions 返回默认选项
func defaultOptions() *options {
	return &options{
		mode: types.ModeEmbedded,
	}
}

// buildConfig 把选项折叠成配置
func (o *options) buildConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	cfg.Mode = o.mode

	if o.remoteEndpoint != "" {
		cfg.Discovery.RemoteEndpoint = o.remoteEndpoint
	}
	if o.remoteName != "" {
		cfg.Discovery.RemoteName = o.remoteName
	}
	if o.announceChannel != "" {
		cfg.Discovery.AnnounceChannel = o.announceChannel
	}
	if o.announceInterval > 0 {
		cfg.Discovery.AnnounceInterval = o.announceInterval
	}
	if o.expireAfter > 0 {
		cfg.Discovery.ExpireAfter = o.expireAfter
	}
	if o.heartbeatInterval > 0 {
		cfg.Transport.HeartbeatInterval = o.heartbeatInterval
	}
	if o.pongTimeout > 0 {
		cfg.Transport.PongTimeout = o.pongTimeout
	}
	if o.handshakeTimeout > 0 {
		cfg.Transport.HandshakeTimeout = o.handshakeTimeout
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("选项组合非法: %w", err)
	}
	return cfg, nil
}

// ============================================================================
//                              模式选项
// ============================================================================

// WithEmbeddedMode 使用同主机嵌入式模式（默认）
//
// 传输走广播总线，发现走播报通道监听。
func WithEmbeddedMode() Option {
	return func(o *options) error {
		o.mode = types.ModeEmbedded
		return nil
	}
}

// WithRemoteMode 使用跨主机远程模式
//
// 传输走点对点 socket，发现合成唯一一条指向 endpoint 的静态记录。
// name 为空时使用默认显示名。
func WithRemoteMode(endpoint, name string) Option {
	return func(o *options) error {
		if endpoint == "" {
			return fmt.Errorf("远程模式需要目标端点")
		}
		o.mode = types.ModeRemote
		o.remoteEndpoint = endpoint
		o.remoteName = name
		return nil
	}
}

// ============================================================================
//                              发现选项
// ============================================================================

// WithAnnounceChannel 覆盖公认播报通道名
//
// 同一主机上的前端与目标必须使用同一通道名才能互相发现。
func WithAnnounceChannel(name string) Option {
	return func(o *options) error {
		if name == "" {
			return fmt.Errorf("播报通道名不能为空")
		}
		o.announceChannel = name
		return nil
	}
}

// WithAnnounceInterval 覆盖播报间隔
func WithAnnounceInterval(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return fmt.Errorf("播报间隔必须为正: %v", d)
		}
		o.announceInterval = d
		return nil
	}
}

// WithExpireAfter 覆盖目标过期窗口
//
// 过期窗口应大于播报间隔，否则目标会在两次播报之间被误判离线。
func WithExpireAfter(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return fmt.Errorf("过期窗口必须为正: %v", d)
		}
		o.expireAfter = d
		return nil
	}
}

// ============================================================================
//                              传输选项
// ============================================================================

// WithHeartbeatInterval 覆盖总线传输的心跳间隔
func WithHeartbeatInterval(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return fmt.Errorf("心跳间隔必须为正: %v", d)
		}
		o.heartbeatInterval = d
		return nil
	}
}

// WithPongTimeout 覆盖总线传输的心跳应答超时
func WithPongTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return fmt.Errorf("心跳应答超时必须为正: %v", d)
		}
		o.pongTimeout = d
		return nil
	}
}

// WithHandshakeTimeout 覆盖 socket 传输的握手超时
func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return fmt.Errorf("握手超时必须为正: %v", d)
		}
		o.handshakeTimeout = d
		return nil
	}
}

// ============================================================================
//                              注入选项
// ============================================================================

// WithBusFactory 注入自定义总线工厂
//
// 默认使用进程内广播 Broker；注入工厂可替换为跨进程实现或测试
// 假实现。
func WithBusFactory(factory busif.Factory) Option {
	return func(o *options) error {
		if factory == nil {
			return fmt.Errorf("总线工厂不能为 nil")
		}
		o.busFactory = factory
		return nil
	}
}

// WithClock 注入时钟（测试用 clock.NewMock）
func WithClock(clk clock.Clock) Option {
	return func(o *options) error {
		if clk == nil {
			return fmt.Errorf("时钟不能为 nil")
		}
		o.clk = clk
		return nil
	}
}

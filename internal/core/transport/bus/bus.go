// Package bus 实现基于同主机广播总线的传输
//
// 包装一条按名字共享的多监听者发布订阅通道。总线没有内建的
// 断开通知——对端静默消失（崩溃、页面重载）后通道对象依然
// "打开"，Send 会写进虚空。因此本传输叠加应用层心跳：周期性
// 发 ping，约定超时内收不到 pong 即判定对端失联，广播 Closed
// 并自我拆除。
//
// 两个保留控制载荷 "ping"/"pong" 只在总线传输之间交换，
// 通道上的其他任何字符串都按应用载荷转发给订阅者。
package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-debugbridge/internal/config"
	"github.com/dep2p/go-debugbridge/internal/core/metrics"
	"github.com/dep2p/go-debugbridge/internal/core/transport"
	busif "github.com/dep2p/go-debugbridge/pkg/interfaces/bus"
	transportif "github.com/dep2p/go-debugbridge/pkg/interfaces/transport"
	logpkg "github.com/dep2p/go-debugbridge/pkg/lib/log"
	"github.com/dep2p/go-debugbridge/pkg/types"
)

var log = logpkg.Logger("transport/bus")

// 保留的心跳控制载荷
const (
	// PayloadPing 心跳探测
	PayloadPing = "ping"
	// PayloadPong 心跳应答
	PayloadPong = "pong"
)

// ============================================================================
//                              选项
// ============================================================================

// Option 传输选项
type Option func(*Transport)

// WithClock 注入时钟（测试用 clock.NewMock）
func WithClock(clk clock.Clock) Option {
	return func(t *Transport) {
		t.clk = clk
	}
}

// WithCounters 注入运行计数器
func WithCounters(c *metrics.Counters) Option {
	return func(t *Transport) {
		t.counters = c
	}
}

// ============================================================================
//                              Transport 实现
// ============================================================================

// Transport 总线传输
//
// 单次物理连接使用：Closed 之后应构造新实例重连。
type Transport struct {
	cfg      config.TransportConfig
	factory  busif.Factory
	clk      clock.Clock
	counters *metrics.Counters

	mu    sync.Mutex
	state types.TransportState
	ch    busif.Channel
	unsub func()

	// stopCh 通知心跳循环退出；stopOnce 保证只关闭一次
	stopCh   chan struct{}
	stopOnce sync.Once

	// pongCh 消息监听向心跳循环传递 pong 信号，容量 1，非阻塞写
	pongCh chan struct{}

	payloads *transport.HandlerSet
	states   *transport.StateHandlerSet
}

var _ transportif.Transport = (*Transport)(nil)

// New 创建总线传输
func New(cfg config.TransportConfig, factory busif.Factory, opts ...Option) *Transport {
	t := &Transport{
		cfg:      cfg,
		factory:  factory,
		clk:      clock.New(),
		state:    types.StateIdle,
		stopCh:   make(chan struct{}),
		pongCh:   make(chan struct{}, 1),
		payloads: transport.NewHandlerSet(),
		states:   transport.NewStateHandlerSet(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ============================================================================
//                              连接管理
// ============================================================================

// Connect 加入总线通道
//
// endpoint 是通道名（发现服务给出的目标令牌）；opts.Channel
// 非空时优先。总线没有握手，挂好监听后立即进入 Open，随后
// 启动心跳循环。对已经 Open 的实例调用是 no-op。
func (t *Transport) Connect(_ context.Context, endpoint string, opts transportif.ConnectOptions) error {
	channel := endpoint
	if opts.Channel != "" {
		channel = opts.Channel
	}
	if channel == "" {
		return transport.ErrEmptyEndpoint
	}

	t.mu.Lock()
	switch t.state {
	case types.StateOpen:
		t.mu.Unlock()
		return nil
	case types.StateConnecting:
		t.mu.Unlock()
		return transport.ErrConnectInProgress
	case types.StateClosed:
		t.mu.Unlock()
		return transport.ErrClosed
	}
	t.state = types.StateConnecting
	t.mu.Unlock()

	t.states.Dispatch(types.StateConnecting, nil)

	ch, err := t.factory(channel)
	if err != nil {
		t.mu.Lock()
		t.state = types.StateClosed
		t.mu.Unlock()
		t.states.Dispatch(types.StateClosed, err)
		log.Warn("加入总线通道失败",
			"channel", channel,
			"err", err)
		return fmt.Errorf("加入通道 %s 失败: %w", channel, err)
	}

	unsub := ch.Subscribe(t.onMessage)

	t.mu.Lock()
	t.ch = ch
	t.unsub = unsub
	t.state = types.StateOpen
	t.mu.Unlock()

	t.states.Dispatch(types.StateOpen, nil)
	log.Info("总线传输已就绪", "channel", channel)

	go t.heartbeatLoop(ch)
	return nil
}

// Disconnect 断开连接
//
// 先取消心跳定时器再关闭通道，避免在已拆除的传输上触发
// ping/超时回调。幂等。
func (t *Transport) Disconnect(_ int, reason string) error {
	t.mu.Lock()
	if t.state != types.StateOpen {
		t.mu.Unlock()
		return nil
	}
	t.state = types.StateClosed
	t.mu.Unlock()

	t.teardown()
	t.states.Dispatch(types.StateClosed, nil)
	log.Info("总线传输已断开", "reason", reason)
	return nil
}

// closeWith 底层失败或心跳超时的统一关闭路径
func (t *Transport) closeWith(cause error) {
	t.mu.Lock()
	if t.state != types.StateOpen {
		t.mu.Unlock()
		return
	}
	t.state = types.StateClosed
	t.mu.Unlock()

	t.teardown()
	t.states.Dispatch(types.StateClosed, cause)
}

// teardown 停止心跳循环、取消订阅并关闭通道
//
// 所有离开 Open 的路径（显式 Disconnect、心跳超时、发布失败）
// 都会经过这里，保证不会留下拆除后还在走的定时器。
func (t *Transport) teardown() {
	t.stopOnce.Do(func() {
		close(t.stopCh)
	})

	t.mu.Lock()
	unsub := t.unsub
	ch := t.ch
	t.unsub = nil
	t.ch = nil
	t.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if ch != nil {
		_ = ch.Close()
	}
}

// ============================================================================
//                              收发
// ============================================================================

// Send 发送一条载荷
func (t *Transport) Send(payload string) error {
	t.mu.Lock()
	if t.state != types.StateOpen {
		t.mu.Unlock()
		return transport.ErrNotConnected
	}
	ch := t.ch
	t.mu.Unlock()

	if err := ch.Publish(payload); err != nil {
		return fmt.Errorf("发送失败: %w", err)
	}
	return nil
}

// onMessage 通道消息监听
//
// 特判两个控制载荷：收到 ping 立即应答 pong；收到 pong 通知
// 心跳循环。其余一律按应用载荷转发。
func (t *Transport) onMessage(payload string) {
	switch payload {
	case PayloadPing:
		t.mu.Lock()
		ch := t.ch
		open := t.state == types.StateOpen
		t.mu.Unlock()
		if open && ch != nil {
			if err := ch.Publish(PayloadPong); err != nil {
				log.Debug("应答 pong 失败", "err", err)
			}
		}
	case PayloadPong:
		select {
		case t.pongCh <- struct{}{}:
		default:
			// 已有未消费的 pong 信号
		}
	default:
		t.mu.Lock()
		open := t.state == types.StateOpen
		t.mu.Unlock()
		if open {
			t.payloads.Dispatch(payload)
		}
	}
}

// ============================================================================
//                              心跳
// ============================================================================

// heartbeatLoop 心跳循环
//
// 每个间隔发布一次 ping；若没有在途的 pong 超时则武装一个。
// pong 到达取消在途超时；超时触发即判定对端失联。ping 间隔
// 定时器与 pong 超时定时器相互独立，但在每条退出路径上一并
// 取消。
func (t *Transport) heartbeatLoop(ch busif.Channel) {
	ticker := t.clk.Ticker(t.cfg.HeartbeatInterval)
	defer ticker.Stop()

	var pongTimer *clock.Timer
	var timeoutC <-chan time.Time
	cancelTimeout := func() {
		if pongTimer != nil {
			pongTimer.Stop()
			pongTimer = nil
			timeoutC = nil
		}
	}
	defer cancelTimeout()

	for {
		select {
		case <-t.stopCh:
			return

		case <-ticker.C:
			if err := ch.Publish(PayloadPing); err != nil {
				t.closeWith(fmt.Errorf("发布心跳失败: %w", err))
				return
			}
			if pongTimer == nil {
				pongTimer = t.clk.Timer(t.cfg.PongTimeout)
				timeoutC = pongTimer.C
			}

		case <-t.pongCh:
			cancelTimeout()

		case <-timeoutC:
			pongTimer = nil
			timeoutC = nil
			t.counters.IncHeartbeatTimeout()
			log.Warn("心跳超时，判定对端失联",
				"channel", ch.Name(),
				"timeout", t.cfg.PongTimeout)
			t.closeWith(transport.ErrHeartbeatTimeout)
			return
		}
	}
}

// ============================================================================
//                              订阅与状态
// ============================================================================

// Subscribe 注册载荷回调
func (t *Transport) Subscribe(handler transportif.PayloadHandler) func() {
	return t.payloads.Add(handler)
}

// OnStateChange 注册状态回调
func (t *Transport) OnStateChange(handler transportif.StateHandler) func() {
	return t.states.Add(handler)
}

// State 返回当前状态
func (t *Transport) State() types.TransportState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

package discovery

import (
	"context"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/dep2p/go-debugbridge/internal/config"
	busif "github.com/dep2p/go-debugbridge/pkg/interfaces/bus"
	discoveryif "github.com/dep2p/go-debugbridge/pkg/interfaces/discovery"
	logpkg "github.com/dep2p/go-debugbridge/pkg/lib/log"
	"github.com/dep2p/go-debugbridge/pkg/types"
)

// ============================================================================
//                              Announcer 实现
// ============================================================================

// Announcer 目标侧自我播报器
//
// 目标实例在播报通道上周期性广播 {id, name, timestamp}。令牌在
// 构造时随机生成（uuid），同时作为对端拨号的总线通道名，碰撞
// 概率可忽略。
type Announcer struct {
	cfg     config.DiscoveryConfig
	name    string
	token   string
	factory busif.Factory
	clk     clock.Clock

	mu      sync.Mutex
	running bool
	ch      busif.Channel
	stopCh  chan struct{}
}

var _ discoveryif.Announcer = (*Announcer)(nil)

// AnnouncerOption 播报器选项
type AnnouncerOption func(*Announcer)

// WithAnnouncerClock 注入时钟（测试用 clock.NewMock）
func WithAnnouncerClock(clk clock.Clock) AnnouncerOption {
	return func(a *Announcer) {
		a.clk = clk
	}
}

// NewAnnouncer 创建播报器
func NewAnnouncer(name string, cfg config.DiscoveryConfig, factory busif.Factory, opts ...AnnouncerOption) *Announcer {
	a := &Announcer{
		cfg:     cfg,
		name:    name,
		token:   uuid.NewString(),
		factory: factory,
		clk:     clock.New(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Token 返回本实例的播报令牌
func (a *Announcer) Token() string {
	return a.token
}

// Start 开始周期播报
//
// 启动后立即播报一次，之后每个间隔播报一次。
func (a *Announcer) Start(_ context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return nil
	}
	ch, err := a.factory(a.cfg.AnnounceChannel)
	if err != nil {
		a.mu.Unlock()
		return fmt.Errorf("加入播报通道失败: %w", err)
	}
	a.ch = ch
	a.stopCh = make(chan struct{})
	a.running = true
	stopCh := a.stopCh
	a.mu.Unlock()

	a.announce(ch)
	go a.announceLoop(ch, stopCh)

	log.Info("播报器已启动",
		"token", logpkg.TruncateID(a.token, 8),
		"name", a.name,
		"interval", a.cfg.AnnounceInterval)
	return nil
}

// Stop 停止播报
func (a *Announcer) Stop() error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	ch := a.ch
	stopCh := a.stopCh
	a.ch = nil
	a.stopCh = nil
	a.mu.Unlock()

	close(stopCh)
	_ = ch.Close()

	log.Info("播报器已停止", "token", logpkg.TruncateID(a.token, 8))
	return nil
}

// announceLoop 播报循环
func (a *Announcer) announceLoop(ch busif.Channel, stopCh <-chan struct{}) {
	ticker := a.clk.Ticker(a.cfg.AnnounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			a.announce(ch)
		}
	}
}

// announce 发出一条自我播报
func (a *Announcer) announce(ch busif.Channel) {
	ann := types.Announcement{
		ID:        a.token,
		Name:      a.name,
		Timestamp: a.clk.Now().UnixMilli(),
	}
	payload, err := ann.Encode()
	if err != nil {
		log.Error("序列化播报失败", "err", err)
		return
	}
	if err := ch.Publish(payload); err != nil {
		log.Debug("发布播报失败", "err", err)
	}
}

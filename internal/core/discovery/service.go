// Package discovery 实现连接发现服务
//
// 服务维护 id → AvailableConnection 的注册表，注册表为服务独占
// 持有，消费者只能拿到时点拷贝。Embedded 模式监听公认播报通道
// 上的自我播报并周期清扫过期目标；Remote 模式合成唯一一条描述
// 当前主机的静态记录。只有集合真正变化（新目标出现、过期目标
// 被移除）才通知订阅者，例行的 LastSeen 刷新不通知。
package discovery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-debugbridge/internal/config"
	"github.com/dep2p/go-debugbridge/internal/core/metrics"
	busif "github.com/dep2p/go-debugbridge/pkg/interfaces/bus"
	discoveryif "github.com/dep2p/go-debugbridge/pkg/interfaces/discovery"
	logpkg "github.com/dep2p/go-debugbridge/pkg/lib/log"
	"github.com/dep2p/go-debugbridge/pkg/types"
)

var log = logpkg.Logger("core/discovery")

// 发现服务相关错误
var (
	// ErrNoBusFactory Embedded 模式缺少总线工厂
	ErrNoBusFactory = errors.New("discovery: bus factory required in embedded mode")
	// ErrNoRemoteEndpoint Remote 模式缺少端点地址
	ErrNoRemoteEndpoint = errors.New("discovery: remote endpoint required in remote mode")
)

// ============================================================================
//                              选项
// ============================================================================

// Option 服务选项
type Option func(*Service)

// WithClock 注入时钟（测试用 clock.NewMock）
func WithClock(clk clock.Clock) Option {
	return func(s *Service) {
		s.clk = clk
	}
}

// WithCounters 注入运行计数器
func WithCounters(c *metrics.Counters) Option {
	return func(s *Service) {
		s.counters = c
	}
}

// ============================================================================
//                              Service 实现
// ============================================================================

// Service 连接发现服务
type Service struct {
	cfg      config.DiscoveryConfig
	mode     types.ConnectionMode
	factory  busif.Factory
	clk      clock.Clock
	counters *metrics.Counters

	mu       sync.RWMutex
	registry map[string]types.AvailableConnection
	subs     map[int]discoveryif.ConnectionsHandler
	nextSub  int
	running  bool

	// ch/unsub/stopCh 仅 Embedded 模式使用
	ch     busif.Channel
	unsub  func()
	stopCh chan struct{}
}

var _ discoveryif.Service = (*Service)(nil)

// NewService 创建发现服务
//
// Embedded 模式需要总线工厂；Remote 模式 factory 可为 nil。
func NewService(mode types.ConnectionMode, cfg config.DiscoveryConfig, factory busif.Factory, opts ...Option) *Service {
	s := &Service{
		cfg:      cfg,
		mode:     mode,
		factory:  factory,
		clk:      clock.New(),
		registry: make(map[string]types.AvailableConnection),
		subs:     make(map[int]discoveryif.ConnectionsHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ============================================================================
//                              生命周期
// ============================================================================

// Start 启动发现服务
func (s *Service) Start(_ context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}

	switch s.mode {
	case types.ModeRemote:
		if s.cfg.RemoteEndpoint == "" {
			s.mu.Unlock()
			return ErrNoRemoteEndpoint
		}
		// 无需监听：合成唯一一条描述当前主机的记录
		s.registry = map[string]types.AvailableConnection{
			s.cfg.RemoteEndpoint: {
				ID:       s.cfg.RemoteEndpoint,
				Name:     s.cfg.RemoteName,
				Mode:     types.ModeRemote,
				LastSeen: s.clk.Now(),
			},
		}
		s.running = true
		s.mu.Unlock()

		log.Info("发现服务已启动",
			"mode", types.ModeRemote,
			"endpoint", s.cfg.RemoteEndpoint)
		s.notify()
		return nil

	case types.ModeEmbedded:
		if s.factory == nil {
			s.mu.Unlock()
			return ErrNoBusFactory
		}
		ch, err := s.factory(s.cfg.AnnounceChannel)
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("加入播报通道失败: %w", err)
		}
		s.ch = ch
		s.unsub = ch.Subscribe(s.handleAnnouncement)
		s.registry = make(map[string]types.AvailableConnection)
		s.stopCh = make(chan struct{})
		s.running = true
		stopCh := s.stopCh
		s.mu.Unlock()

		go s.sweepLoop(stopCh)

		log.Info("发现服务已启动",
			"mode", types.ModeEmbedded,
			"channel", s.cfg.AnnounceChannel)
		return nil

	default:
		s.mu.Unlock()
		return fmt.Errorf("未知连接模式: %v", s.mode)
	}
}

// Stop 停止发现服务
//
// 关闭播报通道、停止清扫并清空注册表，保证停机后读不到过期快照。
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	ch := s.ch
	unsub := s.unsub
	stopCh := s.stopCh
	s.ch = nil
	s.unsub = nil
	s.stopCh = nil
	s.registry = make(map[string]types.AvailableConnection)
	s.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
	}
	if unsub != nil {
		unsub()
	}
	if ch != nil {
		_ = ch.Close()
	}

	log.Info("发现服务已停止", "mode", s.mode)
	return nil
}

// ============================================================================
//                              播报处理
// ============================================================================

// handleAnnouncement 处理一条自我播报
//
// 畸形或缺字段的播报记录日志后丢弃，服务不中断。已知 id 只刷新
// LastSeen，不通知；新 id 进入注册表并通知一次。
func (s *Service) handleAnnouncement(payload string) {
	ann, err := types.ParseAnnouncement(payload)
	if err != nil {
		s.counters.IncDroppedAnnouncement()
		log.Warn("丢弃无效播报",
			"err", err,
			"payload", logpkg.TruncateID(payload, 64))
		return
	}

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	_, known := s.registry[ann.ID]
	s.registry[ann.ID] = types.AvailableConnection{
		ID:       ann.ID,
		Name:     ann.Name,
		Mode:     types.ModeEmbedded,
		LastSeen: s.clk.Now(),
	}
	s.mu.Unlock()

	if !known {
		log.Info("发现新目标",
			"id", logpkg.TruncateID(ann.ID, 8),
			"name", ann.Name)
		s.notify()
	}
}

// ============================================================================
//                              过期清扫
// ============================================================================

// sweepLoop 清扫循环
func (s *Service) sweepLoop(stopCh <-chan struct{}) {
	ticker := s.clk.Ticker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep 移除过期目标
//
// 同一轮清扫移除多个目标也只通知一次。
func (s *Service) sweep() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	now := s.clk.Now()
	removed := 0
	for id, entry := range s.registry {
		if now.Sub(entry.LastSeen) > s.cfg.ExpireAfter {
			delete(s.registry, id)
			removed++
			log.Info("目标过期移除",
				"id", logpkg.TruncateID(id, 8),
				"lastSeen", entry.LastSeen)
		}
	}
	s.mu.Unlock()

	if removed > 0 {
		s.counters.AddExpiredPeers(removed)
		s.notify()
	}
}

// ============================================================================
//                              查询与订阅
// ============================================================================

// AvailableConnections 返回注册表的时点拷贝，按 ID 排序
func (s *Service) AvailableConnections() []types.AvailableConnection {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.AvailableConnection, 0, len(s.registry))
	for _, entry := range s.registry {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// OnConnectionsChanged 注册变更回调
func (s *Service) OnConnectionsChanged(handler discoveryif.ConnectionsHandler) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subs[id] = handler

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// notify 向所有订阅者发送完整快照
//
// 复制订阅者列表后在锁外调用，回调内允许再注册/注销订阅。
func (s *Service) notify() {
	snapshot := s.AvailableConnections()

	s.mu.RLock()
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	handlers := make([]discoveryif.ConnectionsHandler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, s.subs[id])
	}
	s.mu.RUnlock()

	for _, h := range handlers {
		h(snapshot)
	}
}

// Package metrics 提供连接层的运行计数器
//
// 使用原子操作实现并发安全的计数器。计数器是可选依赖：
// 所有方法对 nil 接收者安全，不注入时即关闭统计。
package metrics

import "sync/atomic"

// ============================================================================
//                              Counters 实现
// ============================================================================

// Counters 连接层计数器
type Counters struct {
	// droppedAnnouncements 被丢弃的畸形/不完整播报数
	droppedAnnouncements atomic.Int64

	// heartbeatTimeouts 心跳超时判定失联的次数
	heartbeatTimeouts atomic.Int64

	// expiredPeers 因 TTL 过期被清扫的目标数
	expiredPeers atomic.Int64
}

// NewCounters 创建计数器
func NewCounters() *Counters {
	return &Counters{}
}

// IncDroppedAnnouncement 记录一条被丢弃的播报
func (c *Counters) IncDroppedAnnouncement() {
	if c == nil {
		return
	}
	c.droppedAnnouncements.Add(1)
}

// IncHeartbeatTimeout 记录一次心跳超时
func (c *Counters) IncHeartbeatTimeout() {
	if c == nil {
		return
	}
	c.heartbeatTimeouts.Add(1)
}

// AddExpiredPeers 记录一次清扫淘汰的目标数
func (c *Counters) AddExpiredPeers(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.expiredPeers.Add(int64(n))
}

// DroppedAnnouncements 被丢弃的播报总数
func (c *Counters) DroppedAnnouncements() int64 {
	if c == nil {
		return 0
	}
	return c.droppedAnnouncements.Load()
}

// HeartbeatTimeouts 心跳超时总数
func (c *Counters) HeartbeatTimeouts() int64 {
	if c == nil {
		return 0
	}
	return c.heartbeatTimeouts.Load()
}

// ExpiredPeers 过期淘汰的目标总数
func (c *Counters) ExpiredPeers() int64 {
	if c == nil {
		return 0
	}
	return c.expiredPeers.Load()
}

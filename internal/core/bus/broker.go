// Package bus 实现同主机广播总线
//
// Broker 在进程内维护按名字分组的通道成员集合，模拟浏览器
// BroadcastChannel 的语义：同名通道上的发布会同步送达除发布者
// 之外的所有成员，消息按发布顺序分发，且没有内建的断开通知——
// 对端的消失只能靠上层心跳推断。
package bus

import (
	"sort"
	"sync"

	busif "github.com/dep2p/go-debugbridge/pkg/interfaces/bus"
	logpkg "github.com/dep2p/go-debugbridge/pkg/lib/log"
)

var log = logpkg.Logger("core/bus")

// ============================================================================
//                              Broker 实现
// ============================================================================

// Broker 同主机总线 broker
type Broker struct {
	mu sync.RWMutex

	// members 通道名到成员列表的映射
	members map[string][]*member

	closed bool
}

// NewBroker 创建 broker
func NewBroker() *Broker {
	return &Broker{
		members: make(map[string][]*member),
	}
}

// Join 加入指定通道，返回新的成员句柄
func (b *Broker) Join(name string) (busif.Channel, error) {
	if name == "" {
		return nil, busif.ErrEmptyChannelName
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, busif.ErrChannelClosed
	}

	m := &member{
		broker:   b,
		name:     name,
		handlers: make(map[int]func(string)),
	}
	b.members[name] = append(b.members[name], m)

	log.Debug("加入总线通道",
		"channel", name,
		"members", len(b.members[name]))
	return m, nil
}

// Factory 返回可注入传输层与发现服务的通道工厂
func (b *Broker) Factory() busif.Factory {
	return b.Join
}

// Close 关闭 broker 及其所有成员
func (b *Broker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	all := make([]*member, 0)
	for _, ms := range b.members {
		all = append(all, ms...)
	}
	b.members = make(map[string][]*member)
	b.mu.Unlock()

	for _, m := range all {
		m.markClosed()
	}
	return nil
}

// publish 将 payload 分发给 from 之外的同名成员
func (b *Broker) publish(from *member, payload string) {
	b.mu.RLock()
	ms := b.members[from.name]
	// 拷贝快照，分发期间成员加入/退出不影响本次投递
	targets := make([]*member, 0, len(ms))
	for _, m := range ms {
		if m != from {
			targets = append(targets, m)
		}
	}
	b.mu.RUnlock()

	for _, m := range targets {
		m.dispatch(payload)
	}
}

// leave 将成员从通道中移除
func (b *Broker) leave(m *member) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ms := b.members[m.name]
	for i, cur := range ms {
		if cur == m {
			b.members[m.name] = append(ms[:i], ms[i+1:]...)
			break
		}
	}
	if len(b.members[m.name]) == 0 {
		delete(b.members, m.name)
	}
}

// ============================================================================
//                              成员实现
// ============================================================================

// member 通道成员
type member struct {
	broker *Broker
	name   string

	mu          sync.Mutex
	handlers    map[int]func(string)
	nextHandler int
	closed      bool
}

var _ busif.Channel = (*member)(nil)

// Name 返回通道名
func (m *member) Name() string {
	return m.name
}

// Publish 向通道的其他成员发布消息
func (m *member) Publish(payload string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return busif.ErrChannelClosed
	}
	m.mu.Unlock()

	m.broker.publish(m, payload)
	return nil
}

// Subscribe 注册消息回调
func (m *member) Subscribe(handler func(payload string)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextHandler
	m.nextHandler++
	m.handlers[id] = handler

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.handlers, id)
	}
}

// Close 退出通道
func (m *member) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.handlers = make(map[int]func(string))
	m.mu.Unlock()

	m.broker.leave(m)
	log.Debug("退出总线通道", "channel", m.name)
	return nil
}

// markClosed 由 broker 关闭时调用，只改状态不再回调 broker
func (m *member) markClosed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.handlers = make(map[int]func(string))
}

// dispatch 按注册顺序分发一条消息
//
// 迭代持有者快照：回调内注销任意回调（包括自己）不会干扰
// 本次分发中的其他回调。
func (m *member) dispatch(payload string) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	ids := make([]int, 0, len(m.handlers))
	for id := range m.handlers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	handlers := make([]func(string), 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, m.handlers[id])
	}
	m.mu.Unlock()

	for _, h := range handlers {
		h(payload)
	}
}

package transport

import (
	"sort"
	"sync"

	transportif "github.com/dep2p/go-debugbridge/pkg/interfaces/transport"
	"github.com/dep2p/go-debugbridge/pkg/types"
)

// ============================================================================
//                              载荷回调注册表
// ============================================================================

// HandlerSet 载荷回调注册表
//
// 按身份（递增 id）登记回调；Add 返回的注销函数只移除对应回调。
// 分发时在锁内取快照、锁外调用，分发期间的注销既不会 panic
// 也不会跳过无关回调。
type HandlerSet struct {
	mu       sync.Mutex
	handlers map[int]transportif.PayloadHandler
	next     int
}

// NewHandlerSet 创建载荷回调注册表
func NewHandlerSet() *HandlerSet {
	return &HandlerSet{
		handlers: make(map[int]transportif.PayloadHandler),
	}
}

// Add 登记回调，返回注销函数
func (s *HandlerSet) Add(h transportif.PayloadHandler) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.next
	s.next++
	s.handlers[id] = h

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.handlers, id)
	}
}

// Len 当前登记的回调数
func (s *HandlerSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handlers)
}

// Dispatch 按登记顺序分发一条载荷
func (s *HandlerSet) Dispatch(payload string) {
	for _, h := range s.snapshot() {
		h(payload)
	}
}

// snapshot 取按登记顺序排列的回调快照
func (s *HandlerSet) snapshot() []transportif.PayloadHandler {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int, 0, len(s.handlers))
	for id := range s.handlers {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	out := make([]transportif.PayloadHandler, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.handlers[id])
	}
	return out
}

// ============================================================================
//                              状态回调注册表
// ============================================================================

// StateHandlerSet 状态变更回调注册表
//
// 与 HandlerSet 相同的快照分发语义。状态通知按转换发生的顺序
// 送达。
type StateHandlerSet struct {
	mu       sync.Mutex
	handlers map[int]transportif.StateHandler
	next     int
}

// NewStateHandlerSet 创建状态回调注册表
func NewStateHandlerSet() *StateHandlerSet {
	return &StateHandlerSet{
		handlers: make(map[int]transportif.StateHandler),
	}
}

// Add 登记回调，返回注销函数
func (s *StateHandlerSet) Add(h transportif.StateHandler) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.next
	s.next++
	s.handlers[id] = h

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.handlers, id)
	}
}

// Dispatch 按登记顺序广播一次状态转换
func (s *StateHandlerSet) Dispatch(state types.TransportState, err error) {
	s.mu.Lock()
	ids := make([]int, 0, len(s.handlers))
	for id := range s.handlers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	handlers := make([]transportif.StateHandler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, s.handlers[id])
	}
	s.mu.Unlock()

	for _, h := range handlers {
		h(state, err)
	}
}

// Package socket 实现基于 WebSocket 的点对点传输
//
// 包装一条到固定端点的持久、有序、双向连接。Connect 等待底层
// 握手完成后才返回；载荷监听在就绪之后才挂接，保证载荷回调不会
// 在 Open 之前触发。对端意外关闭只广播 Closed，不自动重连，
// 重连由消费者用新实例发起。
package socket

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dep2p/go-debugbridge/internal/config"
	"github.com/dep2p/go-debugbridge/internal/core/transport"
	transportif "github.com/dep2p/go-debugbridge/pkg/interfaces/transport"
	logpkg "github.com/dep2p/go-debugbridge/pkg/lib/log"
	"github.com/dep2p/go-debugbridge/pkg/types"
)

var log = logpkg.Logger("transport/socket")

// closeWriteTimeout 发送关闭帧的写超时
const closeWriteTimeout = 2 * time.Second

// ============================================================================
//                              Transport 实现
// ============================================================================

// Transport socket 传输
//
// 单次物理连接使用：Closed 之后应构造新实例重连。
type Transport struct {
	cfg config.TransportConfig

	mu       sync.Mutex
	state    types.TransportState
	conn     *websocket.Conn
	endpoint string

	// writeMu 串行化并发 Send 与关闭帧写入
	writeMu sync.Mutex

	payloads *transport.HandlerSet
	states   *transport.StateHandlerSet
}

var _ transportif.Transport = (*Transport)(nil)

// New 创建 socket 传输
func New(cfg config.TransportConfig) *Transport {
	return &Transport{
		cfg:      cfg,
		state:    types.StateIdle,
		payloads: transport.NewHandlerSet(),
		states:   transport.NewStateHandlerSet(),
	}
}

// ============================================================================
//                              连接管理
// ============================================================================

// Connect 建立 WebSocket 连接
//
// 仅在握手完成后返回 nil。对已经 Open 的实例调用是 no-op，
// 对已经 Closed 的实例调用返回 ErrClosed。
func (t *Transport) Connect(ctx context.Context, endpoint string, opts transportif.ConnectOptions) error {
	if endpoint == "" {
		return transport.ErrEmptyEndpoint
	}

	t.mu.Lock()
	switch t.state {
	case types.StateOpen:
		// 既有连接保持不动
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
	t.endpoint = endpoint
	t.mu.Unlock()

	t.states.Dispatch(types.StateConnecting, nil)

	handshakeTimeout := opts.HandshakeTimeout
	if handshakeTimeout == 0 {
		handshakeTimeout = t.cfg.HandshakeTimeout
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
		Subprotocols:     opts.Subprotocols,
	}

	conn, resp, err := dialer.DialContext(ctx, endpoint, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		// 握手失败：广播 Closed 并拒绝本次 Connect
		t.mu.Lock()
		t.state = types.StateClosed
		t.mu.Unlock()
		t.states.Dispatch(types.StateClosed, err)
		log.Warn("WebSocket 握手失败",
			"endpoint", endpoint,
			"err", err)
		return fmt.Errorf("连接 %s 失败: %w", endpoint, err)
	}

	t.mu.Lock()
	t.conn = conn
	t.state = types.StateOpen
	t.mu.Unlock()

	t.states.Dispatch(types.StateOpen, nil)
	log.Info("WebSocket 连接已建立", "endpoint", endpoint)

	// 就绪之后才开始读：载荷回调不可能先于 Open 触发
	go t.readLoop(conn)
	return nil
}

// Disconnect 断开连接
//
// 幂等；非 Open 状态下调用不做任何事。
func (t *Transport) Disconnect(code int, reason string) error {
	t.mu.Lock()
	if t.state != types.StateOpen {
		t.mu.Unlock()
		return nil
	}
	conn := t.conn
	t.conn = nil
	t.state = types.StateClosed
	t.mu.Unlock()

	// 尽力发送关闭帧，失败可忽略
	if code == 0 {
		code = websocket.CloseNormalClosure
	}
	t.writeMu.Lock()
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(closeWriteTimeout),
	)
	t.writeMu.Unlock()
	_ = conn.Close()

	t.states.Dispatch(types.StateClosed, nil)
	log.Info("WebSocket 连接已断开",
		"endpoint", t.endpoint,
		"code", code,
		"reason", reason)
	return nil
}

// ============================================================================
//                              收发
// ============================================================================

// Send 发送一条文本载荷
func (t *Transport) Send(payload string) error {
	t.mu.Lock()
	if t.state != types.StateOpen {
		t.mu.Unlock()
		return transport.ErrNotConnected
	}
	conn := t.conn
	t.mu.Unlock()

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
		return fmt.Errorf("发送失败: %w", err)
	}
	return nil
}

// readLoop 读取循环
//
// 入站帧按接收顺序原样转发；任何读错误（含对端关闭）都作为
// 一次 Closed 广播结束本连接。
func (t *Transport) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.closeWith(conn, err)
			return
		}
		t.payloads.Dispatch(string(data))
	}
}

// closeWith 底层失败时的统一关闭路径
func (t *Transport) closeWith(conn *websocket.Conn, cause error) {
	t.mu.Lock()
	if t.state != types.StateOpen || t.conn != conn {
		// Disconnect 已经处理过
		t.mu.Unlock()
		return
	}
	t.conn = nil
	t.state = types.StateClosed
	t.mu.Unlock()

	_ = conn.Close()
	t.states.Dispatch(types.StateClosed, cause)
	log.Warn("WebSocket 连接中断",
		"endpoint", t.endpoint,
		"err", cause)
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

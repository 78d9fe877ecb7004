package debugbridge

import (
	"errors"

	"github.com/dep2p/go-debugbridge/internal/core/transport"
	busif "github.com/dep2p/go-debugbridge/pkg/interfaces/bus"
)

// ============================================================================
//                              门面错误
// ============================================================================

var (
	// ErrNotStarted 桥接器尚未启动
	ErrNotStarted = errors.New("debugbridge: not started")

	// ErrBridgeClosed 桥接器已关闭
	ErrBridgeClosed = errors.New("debugbridge: closed")
)

// ============================================================================
//                              传输层错误（转出）
// ============================================================================

// 常用底层错误的转出别名，调用方无需引用内部包即可判错
var (
	// ErrNotConnected 传输未处于 Open 状态
	ErrNotConnected = transport.ErrNotConnected

	// ErrTransportClosed 传输实例已关闭（单次使用，不可复用）
	ErrTransportClosed = transport.ErrClosed

	// ErrHeartbeatTimeout 心跳超时导致的断开
	ErrHeartbeatTimeout = transport.ErrHeartbeatTimeout

	// ErrChannelClosed 总线通道已关闭
	ErrChannelClosed = busif.ErrChannelClosed
)

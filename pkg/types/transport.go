package types

// ============================================================================
//                              传输状态
// ============================================================================

// TransportState 传输层连接状态
//
// 状态机：Idle → Connecting → Open → Closed。
// 同一次连接尝试内状态单调推进；Closed 可以从任意状态进入。
// 一个传输实例对应一条物理连接：重连应构造新实例，而不是复用
// 已经 Closed 的实例。
type TransportState int

const (
	// StateIdle 初始状态 - 从未发起过连接
	StateIdle TransportState = iota
	// StateConnecting 连接中 - 已发起连接，底层尚未就绪
	StateConnecting
	// StateOpen 已连接 - 底层就绪，可以收发载荷
	StateOpen
	// StateClosed 已关闭 - 主动断开、底层失败或心跳超时
	StateClosed
)

// String 返回传输状态的字符串表示
func (s TransportState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "invalid"
	}
}

package transport

import "errors"

// 传输层公共错误
var (
	// ErrNotConnected 当前不在 Open 状态，写入未发生
	ErrNotConnected = errors.New("transport not connected")

	// ErrEmptyEndpoint Connect 的 endpoint 为空
	ErrEmptyEndpoint = errors.New("transport endpoint empty")

	// ErrClosed 传输已关闭，实例不可复用
	ErrClosed = errors.New("transport closed")

	// ErrConnectInProgress 已有一次连接尝试在进行中
	ErrConnectInProgress = errors.New("connect already in progress")

	// ErrHeartbeatTimeout 心跳超时，对端被判定为失联
	ErrHeartbeatTimeout = errors.New("heartbeat timeout: peer lost")
)

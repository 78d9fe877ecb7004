package types

import "time"

// ============================================================================
//                              连接模式
// ============================================================================

// ConnectionMode 目标实例的可达方式
type ConnectionMode int

const (
	// ModeEmbedded 内嵌模式 - 经由同主机广播总线可达
	ModeEmbedded ConnectionMode = iota
	// ModeRemote 远程模式 - 经由点对点 socket 可达
	ModeRemote
)

// String 返回连接模式的字符串表示
func (m ConnectionMode) String() string {
	switch m {
	case ModeEmbedded:
		return "embedded"
	case ModeRemote:
		return "remote"
	default:
		return "invalid"
	}
}

// ============================================================================
//                              可用连接
// ============================================================================

// AvailableConnection 发现服务登记的一个可连接目标
//
// ID 是路由键：Remote 模式下是 socket 端点地址，
// Embedded 模式下是目标自行生成的随机令牌（同时也是总线通道名）。
type AvailableConnection struct {
	// ID 路由键，作为 Transport.Connect 的 endpoint 使用
	ID string

	// Name 展示给用户的目标名称
	Name string

	// Mode 目标的可达方式
	Mode ConnectionMode

	// LastSeen 最近一次收到该目标播报的时间，只会前进不会回退
	LastSeen time.Time
}

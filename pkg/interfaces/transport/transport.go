// Package transport 定义传输层接口
//
// 传输层负责在调试器前端与目标实例之间搬运不透明的字符串载荷，
// 抽象了两种结构不同的底层通道（点对点 socket 与同主机广播总线）。
// 上层的 RPC 关联层只依赖本接口，不关心底层通道类型。
package transport

import (
	"context"
	"time"

	"github.com/dep2p/go-debugbridge/pkg/types"
)

// ============================================================================
//                              回调类型
// ============================================================================

// PayloadHandler 载荷回调
//
// 在 Open 状态下收到的每条入站载荷都会按接收顺序原样转发给所有
// 已注册的回调。回调内允许再次操作传输（包括 Disconnect）。
type PayloadHandler func(payload string)

// StateHandler 状态变更回调
//
// 收到新状态；对失败引起的转换（握手失败、底层关闭、心跳超时），
// err 携带底层原因，否则为 nil。
type StateHandler func(state types.TransportState, err error)

// ============================================================================
//                              连接选项
// ============================================================================

// ConnectOptions 连接选项
type ConnectOptions struct {
	// Subprotocols socket 变体的子协议协商列表（可选）
	Subprotocols []string

	// Channel 总线变体的通道名，为空时使用 endpoint 作为通道名
	Channel string

	// HandshakeTimeout socket 变体的握手超时，零值使用实现默认值
	HandshakeTimeout time.Duration
}

// Factory 构造一个尚未连接的传输实例
//
// 传输实例按单次物理连接使用，上层每次建连都通过 Factory 取新
// 实例而不是复用已 Closed 的实例。
type Factory func() Transport

// ============================================================================
//                              Transport 接口
// ============================================================================

// Transport 传输层接口
//
// 生命周期：Idle →(Connect)→ Connecting →(底层就绪)→ Open
// →(Disconnect | 底层失败 | 心跳超时)→ Closed。
// Connecting 阶段底层出错同样进入 Closed（握手失败）。
//
// 实例按单次物理连接使用：Closed 之后重连应构造新实例。
// 对已经 Open 的实例再次调用 Connect 是无副作用的 no-op，
// 不会悄悄丢弃既有连接。
type Transport interface {
	// Connect 建立连接
	//
	// endpoint 不能为空：socket 变体是端点 URL，总线变体是通道名
	// （通常为发现服务给出的目标令牌）。仅在底层真正就绪后返回 nil，
	// 失败时状态变为 Closed 并返回底层错误。
	Connect(ctx context.Context, endpoint string, opts ConnectOptions) error

	// Disconnect 断开连接
	//
	// 幂等：在 Idle/Closed 状态下调用直接返回 nil。
	// 转换到 Closed 并释放底层通道。
	Disconnect(code int, reason string) error

	// Send 发送一条载荷
	//
	// 状态不为 Open 时返回 ErrNotConnected，不做缓冲或重试，
	// 重试策略由调用方负责。
	Send(payload string) error

	// Subscribe 注册载荷回调，返回仅移除该回调的注销函数
	Subscribe(handler PayloadHandler) (unsubscribe func())

	// OnStateChange 注册状态回调，返回仅移除该回调的注销函数
	OnStateChange(handler StateHandler) (unsubscribe func())

	// State 返回当前状态
	State() types.TransportState
}

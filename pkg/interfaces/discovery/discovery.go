// Package discovery 定义连接发现接口
//
// 发现服务维护当前可连接目标的注册表：Embedded 模式下监听总线上
// 的周期性自我播报并按 TTL 过期淘汰；Remote 模式下合成唯一一条
// 描述当前主机的静态记录。注册表由服务独占持有，消费者只读快照。
package discovery

import (
	"context"

	"github.com/dep2p/go-debugbridge/pkg/types"
)

// ConnectionsHandler 连接集合变更回调
//
// 收到完整的当前快照而非增量。仅在集合真正变化时触发：
// 新目标首次出现、或清扫移除了至少一个过期目标；
// 已知目标的例行 LastSeen 刷新不触发。
type ConnectionsHandler func(connections []types.AvailableConnection)

// Service 连接发现服务
type Service interface {
	// Start 启动发现
	//
	// Embedded 模式开始监听播报通道并启动过期清扫；
	// Remote 模式合成静态记录并通知一次。重复调用为 no-op。
	Start(ctx context.Context) error

	// Stop 停止发现
	//
	// 关闭播报通道、停止清扫、清空注册表，保证停机后读不到
	// 过期快照。幂等。
	Stop() error

	// AvailableConnections 返回当前注册表的时点拷贝
	AvailableConnections() []types.AvailableConnection

	// OnConnectionsChanged 注册变更回调，返回注销函数
	OnConnectionsChanged(handler ConnectionsHandler) (unsubscribe func())
}

// Announcer 目标侧的自我播报器
//
// 目标实例（模拟器）周期性地在播报通道上广播自己的令牌与名称，
// 供对端的发现服务登记。
type Announcer interface {
	// Token 返回本实例的播报令牌，即消费者应拨号的总线通道名
	Token() string

	// Start 开始周期播报，重复调用为 no-op
	Start(ctx context.Context) error

	// Stop 停止播报并关闭通道，幂等
	Stop() error
}

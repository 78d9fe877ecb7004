// Package debugbridge 实现调试器前端与目标实例之间的连接层
//
// 连接层由两部分组成：
//
//   - 传输层（pkg/interfaces/transport）：在前端与目标之间搬运不
//     透明的字符串载荷。提供两种底层变体：跨主机的点对点 socket
//     传输（internal/core/transport/socket）与同主机的广播总线
//     传输（internal/core/transport/bus），后者在无断开通知的总
//     线上以应用层心跳探测对端存活。
//   - 发现层（pkg/interfaces/discovery）：目标实例在公认播报通道
//     上周期性自我播报，发现服务监听播报、维护带过期清扫的目标
//     注册表，并在可连接目标集合变化时通知订阅者。
//
// Bridge 是两部分的组装门面：
//
//	bridge, err := debugbridge.New()
//	if err != nil { ... }
//	if err := bridge.Start(ctx); err != nil { ... }
//	defer bridge.Close()
//
//	bridge.Discovery().OnConnectionsChanged(func(conns []types.AvailableConnection) {
//		// 目标集合变化
//	})
//
//	tr := bridge.NewTransport()
//	if err := tr.Connect(ctx, target.ID, transport.ConnectOptions{}); err != nil { ... }
//
// 传输实例按单次物理连接使用：Closed 之后重连应通过 NewTransport
// 取新实例。
package debugbridge

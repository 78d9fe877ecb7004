// Package transport 实现传输层共用部件
//
// 两个具体传输（socket、总线）共用的部分放在本包：
//
//   - 错误定义：ErrNotConnected、ErrEmptyEndpoint 等
//   - 回调注册表：HandlerSet / StateHandlerSet，分发时取快照，
//     分发期间的注销不会干扰其他回调
//   - Fx 模块集成
//
// 具体实现位于子包：
//
//   - socket: 基于 gorilla/websocket 的点对点传输
//   - bus:    基于同主机广播总线的传输，叠加应用层心跳
//
// # 状态机
//
//	Idle →(Connect)→ Connecting →(底层就绪)→ Open
//	Open →(Disconnect | 底层失败 | 心跳超时)→ Closed
//	Connecting →(底层出错)→ Closed
//
// # 并发安全
//
// 注册表和状态由各自传输实例的互斥锁保护；回调在不持锁的情况下
// 调用，回调内允许再次操作传输。
//
// 公共接口：pkg/interfaces/transport
package transport

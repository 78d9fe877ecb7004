// Package types 定义 DebugBridge 的公共数据结构
//
// 这是整个系统的最底层包，不依赖任何其他 debugbridge 内部包。
// 所有类型都是纯值类型，用于在各模块间传递数据。
//
// # 文件组织
//
//   - transport.go    - TransportState 传输状态机枚举
//   - connection.go   - ConnectionMode, AvailableConnection
//   - announcement.go - Announcement 自我播报消息及其解析
package types

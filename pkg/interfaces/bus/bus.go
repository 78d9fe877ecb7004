// Package bus 定义同主机广播总线接口
//
// 总线是一个按名字分组的多监听者发布订阅通道：同名通道上的每个
// 成员都会收到其他成员发布的每条消息（不含自己发布的），并且没有
// 内建的断开通知。传输层的心跳协议和发现服务的播报监听都构建在
// 该接口之上；测试中可注入假实现。
package bus

import "errors"

// 总线相关错误
var (
	// ErrChannelClosed 通道已关闭
	ErrChannelClosed = errors.New("bus channel closed")
	// ErrEmptyChannelName 通道名为空
	ErrEmptyChannelName = errors.New("bus channel name empty")
)

// Channel 一个已加入的通道成员
type Channel interface {
	// Name 返回通道名
	Name() string

	// Publish 向同名通道的其他成员发布一条消息
	//
	// 不会回送给自己。通道关闭后返回 ErrChannelClosed。
	Publish(payload string) error

	// Subscribe 注册消息回调，返回仅移除该回调的注销函数
	//
	// 消息按发布顺序同步分发。
	Subscribe(handler func(payload string)) (unsubscribe func())

	// Close 退出通道并释放资源，幂等
	Close() error
}

// Factory 按名字加入通道
//
// 传输层和发现服务通过注入的 Factory 获得通道，
// 测试中替换为假总线即可脱离真实 broker 运行。
type Factory func(name string) (Channel, error)

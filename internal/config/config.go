// Package config 提供 debugbridge 配置管理层
//
// config 包负责：
// - 定义内部配置结构
// - 提供默认值
// - 配置校验
package config

import (
	"time"

	"github.com/dep2p/go-debugbridge/pkg/types"
)

// DefaultAnnounceChannel 公认的播报通道名
//
// 目标实例在该通道上周期性广播自我介绍，发现服务在该通道上监听。
const DefaultAnnounceChannel = "debugbridge/announce"

// ============================================================================
//                              总体配置
// ============================================================================

// Config 内部配置结构
type Config struct {
	// Mode 活动的底层通道模式
	Mode types.ConnectionMode

	// Transport 传输配置
	Transport TransportConfig

	// Discovery 发现服务配置
	Discovery DiscoveryConfig
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Mode:      types.ModeEmbedded,
		Transport: DefaultTransportConfig(),
		Discovery: DefaultDiscoveryConfig(),
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	if err := c.Transport.Validate(); err != nil {
		return err
	}
	return c.Discovery.Validate()
}

// ============================================================================
//                              传输配置
// ============================================================================

// TransportConfig 传输配置
type TransportConfig struct {
	// HeartbeatInterval 总线变体的心跳发送间隔
	HeartbeatInterval time.Duration

	// PongTimeout 发出 ping 后等待 pong 的超时，超时视为对端失联
	PongTimeout time.Duration

	// HandshakeTimeout socket 变体的握手超时
	HandshakeTimeout time.Duration
}

// DefaultTransportConfig 默认传输配置
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		HeartbeatInterval: 1 * time.Second,
		PongTimeout:       3 * time.Second,
		HandshakeTimeout:  10 * time.Second,
	}
}

// Validate 校验传输配置
func (c TransportConfig) Validate() error {
	v := NewValidator()
	if c.HeartbeatInterval <= 0 {
		v.addError("Transport.HeartbeatInterval", "必须大于 0")
	}
	if c.PongTimeout <= 0 {
		v.addError("Transport.PongTimeout", "必须大于 0")
	}
	if c.HandshakeTimeout < 0 {
		v.addError("Transport.HandshakeTimeout", "不能为负")
	}
	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

// ============================================================================
//                              发现配置
// ============================================================================

// DiscoveryConfig 发现服务配置
type DiscoveryConfig struct {
	// AnnounceChannel 播报通道名
	AnnounceChannel string

	// AnnounceInterval 目标侧自我播报间隔
	AnnounceInterval time.Duration

	// SweepInterval 过期清扫间隔
	SweepInterval time.Duration

	// ExpireAfter 超过此时长未收到播报即淘汰
	ExpireAfter time.Duration

	// RemoteEndpoint Remote 模式下合成记录的端点地址
	RemoteEndpoint string

	// RemoteName Remote 模式下合成记录的展示名称
	RemoteName string
}

// DefaultDiscoveryConfig 默认发现配置
func DefaultDiscoveryConfig() DiscoveryConfig {
	return DiscoveryConfig{
		AnnounceChannel:  DefaultAnnounceChannel,
		AnnounceInterval: 1 * time.Second,
		SweepInterval:    1 * time.Second,
		ExpireAfter:      4 * time.Second,
		RemoteName:       "Remote Target",
	}
}

// Validate 校验发现配置
func (c DiscoveryConfig) Validate() error {
	v := NewValidator()
	if c.AnnounceChannel == "" {
		v.addError("Discovery.AnnounceChannel", "不能为空")
	}
	if c.AnnounceInterval <= 0 {
		v.addError("Discovery.AnnounceInterval", "必须大于 0")
	}
	if c.SweepInterval <= 0 {
		v.addError("Discovery.SweepInterval", "必须大于 0")
	}
	if c.ExpireAfter <= c.SweepInterval {
		v.addError("Discovery.ExpireAfter", "应大于清扫间隔，否则目标会在刷新前被淘汰")
	}
	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

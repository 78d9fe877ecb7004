package discovery

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-debugbridge/internal/config"
	"github.com/dep2p/go-debugbridge/internal/core/metrics"
	busif "github.com/dep2p/go-debugbridge/pkg/interfaces/bus"
	discoveryif "github.com/dep2p/go-debugbridge/pkg/interfaces/discovery"
)

// ============================================================================
//                              模块输入依赖
// ============================================================================

// ModuleInput 定义模块输入依赖
type ModuleInput struct {
	fx.In

	// Config 配置
	Config *config.Config

	// Factory 总线工厂（Remote 模式可缺省）
	Factory busif.Factory `optional:"true"`

	// Counters 运行计数器（可选）
	Counters *metrics.Counters `optional:"true"`

	// Clock 时钟注入（测试用）
	Clock clock.Clock `optional:"true"`
}

// ============================================================================
//                              模块输出服务
// ============================================================================

// ModuleOutput 定义模块输出服务
type ModuleOutput struct {
	fx.Out

	// Discovery 连接发现服务
	Discovery discoveryif.Service `name:"discovery"`
}

// ProvideService 提供发现服务
func ProvideService(input ModuleInput) ModuleOutput {
	opts := make([]Option, 0, 2)
	if input.Counters != nil {
		opts = append(opts, WithCounters(input.Counters))
	}
	if input.Clock != nil {
		opts = append(opts, WithClock(input.Clock))
	}
	svc := NewService(input.Config.Mode, input.Config.Discovery, input.Factory, opts...)
	return ModuleOutput{Discovery: svc}
}

// lifecycleInput 生命周期注入输入
type lifecycleInput struct {
	fx.In

	Lifecycle fx.Lifecycle
	Discovery discoveryif.Service `name:"discovery"`
}

// registerLifecycle 挂接启动/停止钩子
func registerLifecycle(input lifecycleInput) {
	input.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return input.Discovery.Start(ctx)
		},
		OnStop: func(context.Context) error {
			return input.Discovery.Stop()
		},
	})
}

// Module 返回发现模块
func Module() fx.Option {
	return fx.Options(
		fx.Provide(ProvideService),
		fx.Invoke(registerLifecycle),
	)
}

package transportfx

import (
	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-debugbridge/internal/config"
	"github.com/dep2p/go-debugbridge/internal/core/metrics"
	busimpl "github.com/dep2p/go-debugbridge/internal/core/transport/bus"
	"github.com/dep2p/go-debugbridge/internal/core/transport/socket"
	busif "github.com/dep2p/go-debugbridge/pkg/interfaces/bus"
	transportif "github.com/dep2p/go-debugbridge/pkg/interfaces/transport"
	"github.com/dep2p/go-debugbridge/pkg/types"
)

// ============================================================================
//                              模块输入依赖
// ============================================================================

// ModuleInput 定义模块输入依赖
type ModuleInput struct {
	fx.In

	// Config 配置
	Config *config.Config

	// Bus 总线工厂（Embedded 模式必需）
	Bus busif.Factory `optional:"true"`

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

	// Factory 传输实例工厂，按配置模式选择底层变体
	Factory transportif.Factory `name:"transport_factory"`
}

// ProvideFactory 提供传输工厂
//
// Embedded 模式产出总线传输，Remote 模式产出 socket 传输。
func ProvideFactory(input ModuleInput) ModuleOutput {
	cfg := input.Config.Transport
	mode := input.Config.Mode

	factory := transportif.Factory(func() transportif.Transport {
		if mode == types.ModeEmbedded {
			opts := make([]busimpl.Option, 0, 2)
			if input.Counters != nil {
				opts = append(opts, busimpl.WithCounters(input.Counters))
			}
			if input.Clock != nil {
				opts = append(opts, busimpl.WithClock(input.Clock))
			}
			return busimpl.New(cfg, input.Bus, opts...)
		}
		return socket.New(cfg)
	})
	return ModuleOutput{Factory: factory}
}

// Module 返回传输模块
func Module() fx.Option {
	return fx.Provide(ProvideFactory)
}

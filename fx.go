package debugbridge

import (
	"github.com/benbjohnson/clock"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-debugbridge/internal/config"
	corebus "github.com/dep2p/go-debugbridge/internal/core/bus"
	"github.com/dep2p/go-debugbridge/internal/core/discovery"
	"github.com/dep2p/go-debugbridge/internal/core/metrics"
	"github.com/dep2p/go-debugbridge/internal/core/transport/transportfx"
	busif "github.com/dep2p/go-debugbridge/pkg/interfaces/bus"
	discoveryif "github.com/dep2p/go-debugbridge/pkg/interfaces/discovery"
	transportif "github.com/dep2p/go-debugbridge/pkg/interfaces/transport"
)

// buildFxApp 构建 Fx 应用
//
// 组装连接层的全部内部模块：
//  1. 配置注入
//  2. 总线工厂与运行计数器
//  3. 传输模块（按模式产出 socket 或总线传输工厂）
//  4. 发现模块（挂接启动/停止生命周期）
func buildFxApp(cfg *config.Config, o *options, counters *metrics.Counters, handles *bridgeHandles) *fx.App {
	modules := []fx.Option{
		// 配置注入
		fx.Supply(cfg),
		fx.Supply(counters),
	}

	// 总线工厂（Embedded 模式必需，Remote 模式缺省）
	if o.busFactory != nil {
		factory := o.busFactory
		modules = append(modules, fx.Provide(func() busif.Factory { return factory }))
	}

	// 时钟注入（测试用）
	if o.clk != nil {
		clk := o.clk
		modules = append(modules, fx.Provide(func() clock.Clock { return clk }))
	}

	modules = append(modules,
		transportfx.Module(),
		discovery.Module(),
		fx.Populate(handles),

		// 禁用 Fx 日志输出（避免干扰用户日志）
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
		fx.NopLogger,
	)

	return fx.New(modules...)
}

// bridgeHandles 从 Fx 图中取出的服务句柄
type bridgeHandles struct {
	fx.In

	Discovery discoveryif.Service `name:"discovery"`
	Transport transportif.Factory `name:"transport_factory"`
}

// Module 返回面向 Fx 用户的连接层模块
//
// 供在自己的 Fx 应用里内嵌连接层的调用方使用：提供默认配置、
// 进程内总线与运行计数器，应用方可用 fx.Replace/fx.Decorate
// 覆盖任意一项。大多数调用方应优先使用 New 门面。
func Module() fx.Option {
	return fx.Options(
		fx.Provide(config.DefaultConfig),
		fx.Provide(metrics.NewCounters),
		fx.Provide(func() busif.Factory { return corebus.NewBroker().Factory() }),
		transportfx.Module(),
		discovery.Module(),
	)
}

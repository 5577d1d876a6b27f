package scheduler

import (
	"github.com/smallbiznis/payflow/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("scheduler",
	fx.Provide(ProvideConfig),
	fx.Provide(New),
	fx.Provide(NewTickerPort),
	fx.Invoke(StartScheduler),
)

// StartScheduler registers the settlement jobs on the ticker port and ties
// the port to the application lifecycle.
func StartScheduler(lc fx.Lifecycle, cfg config.Config, sched *Scheduler, port *TickerPort, log *zap.Logger) {
	if !cfg.Scheduler.Enabled {
		log.Info("scheduler disabled")
		return
	}
	sched.Register(port)
	lc.Append(fx.Hook{
		OnStart: port.Start,
		OnStop:  port.Stop,
	})
}

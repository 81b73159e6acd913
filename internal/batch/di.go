package batch

import (
	"github.com/samber/do/v2"
	"github.com/scribelab/scribed/internal/config"
	"github.com/scribelab/scribed/internal/inference"
	"github.com/scribelab/scribed/internal/worker"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Scheduler, error) {
		cfg := do.MustInvoke[*config.Config](i)
		pool := do.MustInvoke[*worker.Pool](i)
		invoker := do.MustInvoke[inference.Invoker](i)
		return NewScheduler(cfg, pool, invoker), nil
	})
}

package worker

import (
	"github.com/samber/do/v2"
	"github.com/scribelab/scribed/internal/config"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Pool, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return NewPool(cfg.WorkerCount, 0), nil
	})
}

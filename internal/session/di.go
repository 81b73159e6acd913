package session

import (
	"github.com/samber/do/v2"
	"github.com/scribelab/scribed/internal/config"
	"github.com/scribelab/scribed/internal/repository"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Registry, error) {
		cfg := do.MustInvoke[*config.Config](i)
		repo := do.MustInvoke[repository.Repository](i)
		return NewRegistry(cfg, repo), nil
	})
}

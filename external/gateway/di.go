package gateway

import (
	"github.com/samber/do/v2"

	"github.com/scribelab/scribed/internal/config"
	"github.com/scribelab/scribed/internal/ingest"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Server, error) {
		cfg := do.MustInvoke[*config.Config](i)
		svc := do.MustInvoke[*ingest.Service](i)
		return NewServer(cfg, svc), nil
	})
}

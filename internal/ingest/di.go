package ingest

import (
	"github.com/samber/do/v2"

	"github.com/scribelab/scribed/internal/audio"
	"github.com/scribelab/scribed/internal/batch"
	"github.com/scribelab/scribed/internal/config"
	"github.com/scribelab/scribed/internal/dispatch"
	"github.com/scribelab/scribed/internal/repository"
	"github.com/scribelab/scribed/internal/session"
	"github.com/scribelab/scribed/internal/transcriber"
	"github.com/scribelab/scribed/internal/worker"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Service, error) {
		return NewService(
			do.MustInvoke[*config.Config](i),
			do.MustInvoke[*session.Registry](i),
			do.MustInvoke[*batch.Scheduler](i),
			do.MustInvoke[*dispatch.Dispatcher](i),
			do.MustInvoke[transcriber.Transcriber](i),
			do.MustInvoke[audio.Decoder](i),
			do.MustInvoke[repository.Repository](i),
			do.MustInvoke[*worker.Pool](i),
		), nil
	})
}

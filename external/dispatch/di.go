package dispatch

import (
	"log/slog"

	"github.com/samber/do/v2"

	"github.com/scribelab/scribed/internal/config"
	"github.com/scribelab/scribed/internal/dispatch"
	"github.com/scribelab/scribed/internal/repository"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*dispatch.Dispatcher, error) {
		cfg := do.MustInvoke[*config.Config](i)
		repo := do.MustInvoke[repository.Repository](i)
		queue := do.MustInvoke[dispatch.Queue](i)

		var targets []dispatch.Target
		if cfg.TaskPlatformURL != "" {
			targets = append(targets, NewTaskPlatformTarget(cfg.TaskPlatformURL, cfg.TaskPlatformToken, cfg.ExternalCallTimeout))
		}
		if cfg.SummaryWebhookURL != "" {
			targets = append(targets, NewSummaryWebhookTarget(cfg.SummaryWebhookURL, cfg.ExternalCallTimeout))
		}
		if cfg.DiscordToken != "" {
			discord, err := NewDiscordNotifyTarget(cfg.DiscordToken, cfg.DiscordNotifyChannelID)
			if err != nil {
				return nil, err
			}
			targets = append(targets, discord)
		}
		if !cfg.HasDispatchTargets() {
			slog.Warn("no dispatch targets configured; artifacts will only be persisted")
		}
		return dispatch.NewDispatcher(cfg, repo, queue, targets...), nil
	})
}

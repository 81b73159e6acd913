package queue

import (
	"github.com/redis/go-redis/v9"
	"github.com/samber/do/v2"

	"github.com/scribelab/scribed/internal/config"
	"github.com/scribelab/scribed/internal/dispatch"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (dispatch.Queue, error) {
		cfg := do.MustInvoke[*config.Config](i)
		if cfg.RedisURL == "" {
			return NewMemoryQueue(), nil
		}
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return NewRedisQueue(redis.NewClient(opts)), nil
	})
}

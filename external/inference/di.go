package inference

import (
	"github.com/samber/do/v2"
	"github.com/scribelab/scribed/internal/config"
	internalinference "github.com/scribelab/scribed/internal/inference"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (internalinference.Invoker, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewClient(ClientConfig{
			BaseURL:   c.InferenceBaseURL,
			APIKey:    c.InferenceAPIKey,
			Model:     c.InferenceModel,
			MaxTokens: c.InferenceMaxTokens,
		}), nil
	})
}

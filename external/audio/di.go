package audio

import (
	"github.com/samber/do/v2"

	internalaudio "github.com/scribelab/scribed/internal/audio"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (internalaudio.Decoder, error) {
		return NewDecoder(), nil
	})
}

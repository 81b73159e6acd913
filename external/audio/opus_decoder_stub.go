//go:build !opus

package audio

import (
	"fmt"
	"strings"

	internalaudio "github.com/scribelab/scribed/internal/audio"
)

// passthroughDecoder is the build without libopus: PCM chunks pass through,
// opus chunks are rejected so the failure is explicit rather than garbled
// audio reaching the transcriber.
type passthroughDecoder struct{}

func NewDecoder() internalaudio.Decoder {
	return passthroughDecoder{}
}

func (passthroughDecoder) Decode(payload []byte, codec string, _ int) ([]byte, error) {
	switch strings.ToLower(codec) {
	case "", "pcm", "linear16":
		return payload, nil
	default:
		return nil, fmt.Errorf("codec %q requires the opus build tag", codec)
	}
}

//go:build opus

package audio

import (
	"encoding/binary"
	"fmt"
	"strings"
	"sync"

	"github.com/hraban/opus"

	internalaudio "github.com/scribelab/scribed/internal/audio"
)

const (
	channels        = 1
	frameSizeMs     = 60
	maxFrameSamples = 48000 * frameSizeMs / 1000
)

// OpusDecoder decodes opus chunk payloads to 16-bit little-endian mono PCM.
// One libopus decoder per sample rate, reused across chunks.
type OpusDecoder struct {
	mu       sync.Mutex
	decoders map[int]*opus.Decoder
}

func NewDecoder() internalaudio.Decoder {
	return &OpusDecoder{decoders: make(map[int]*opus.Decoder)}
}

func (d *OpusDecoder) Decode(payload []byte, codec string, sampleRate int) ([]byte, error) {
	switch strings.ToLower(codec) {
	case "", "pcm", "linear16":
		return payload, nil
	case "opus":
	default:
		return nil, fmt.Errorf("unsupported codec %q", codec)
	}
	if sampleRate <= 0 {
		sampleRate = 48000
	}

	d.mu.Lock()
	dec, ok := d.decoders[sampleRate]
	if !ok {
		var err error
		dec, err = opus.NewDecoder(sampleRate, channels)
		if err != nil {
			d.mu.Unlock()
			return nil, fmt.Errorf("create opus decoder: %w", err)
		}
		d.decoders[sampleRate] = dec
	}
	d.mu.Unlock()

	pcm := make([]int16, maxFrameSamples)
	n, err := dec.Decode(payload, pcm)
	if err != nil {
		return nil, fmt.Errorf("decode opus frame: %w", err)
	}

	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(pcm[i]))
	}
	return out, nil
}

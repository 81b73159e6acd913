package audio

// Decoder turns a compressed chunk payload into 16-bit little-endian mono PCM
// at the chunk's sample rate. Chunks already carrying PCM pass through.
type Decoder interface {
	Decode(payload []byte, codec string, sampleRate int) ([]byte, error)
}

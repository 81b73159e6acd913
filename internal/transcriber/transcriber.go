package transcriber

import "context"

// Result is one recognition outcome. Empty Text with a nil error means no
// speech was detected in the chunk; that is a normal outcome, not a failure.
type Result struct {
	Text       string
	Confidence float64
}

// Transcriber converts one PCM audio chunk to text. Synchronous but slow;
// always invoked from the worker pool with a timeout on ctx.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []byte, sampleRate int) (Result, error)
}

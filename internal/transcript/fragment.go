package transcript

import (
	"strings"
	"time"
)

// Fragment is one transcribed unit of speech as it arrives from the
// transcription engine, before deduplication.
type Fragment struct {
	Text            string
	Confidence      float64
	SourceTimestamp time.Time
	// SequenceHint is best-effort ordering from the capture client. Chunks may
	// arrive out of order; fragments are appended in arrival order regardless.
	SequenceHint int64
}

// Segment is a finalized, deduplicated entry of the cumulative transcript.
type Segment struct {
	Text       string
	Speaker    string
	Confidence float64
	Seq        int
	SpokenAt   time.Time
}

// Normalize lowercases and collapses whitespace so that re-emissions of the
// same utterance from overlapping audio windows compare equal.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// EstimateTokens approximates the inference token count of text. The batch
// token budget absorbs the error of the chars/4 heuristic.
func EstimateTokens(text string) int {
	n := len(text)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}

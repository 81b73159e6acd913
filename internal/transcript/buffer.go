package transcript

import (
	"strings"
	"time"

	"github.com/scribelab/scribed/internal/fault"
)

// Buffer accumulates deduplicated transcript content for one session. It is
// not synchronized; the owning session serializes access.
type Buffer struct {
	minChars  int
	threshold float64
	recentCap int

	// recent holds normalized fragment texts, most recent last, bounded by
	// recentCap with the oldest evicted first.
	recent []string

	cumulative []Segment
	nextSeq    int

	pending       []Segment
	pendingTokens int
}

func NewBuffer(minChars int, similarityThreshold float64, recentCap int) *Buffer {
	return &Buffer{
		minChars:  minChars,
		threshold: similarityThreshold,
		recentCap: recentCap,
		nextSeq:   1,
	}
}

// Ingest applies the noise gate and duplicate suppression, then appends the
// fragment to both the cumulative transcript and the pending buffer. The
// returned error, when non-nil, carries fault.InputRejected or
// fault.DuplicateSuppressed; neither aborts the session.
func (b *Buffer) Ingest(f Fragment) (Segment, error) {
	normalized := Normalize(f.Text)
	if len(normalized) < b.minChars {
		return Segment{}, fault.Newf(fault.InputRejected, "transcript", "fragment below %d chars", b.minChars)
	}
	for _, prev := range b.recent {
		if Similarity(normalized, prev) >= b.threshold {
			return Segment{}, fault.Newf(fault.DuplicateSuppressed, "transcript", "near-duplicate of recent fragment")
		}
	}

	spokenAt := f.SourceTimestamp
	if spokenAt.IsZero() {
		spokenAt = time.Now()
	}
	seg := Segment{
		Text:       strings.TrimSpace(f.Text),
		Confidence: f.Confidence,
		Seq:        b.nextSeq,
		SpokenAt:   spokenAt,
	}
	b.nextSeq++
	b.cumulative = append(b.cumulative, seg)
	b.pending = append(b.pending, seg)
	b.pendingTokens += EstimateTokens(seg.Text)

	b.recent = append(b.recent, normalized)
	if len(b.recent) > b.recentCap {
		b.recent = b.recent[1:]
	}
	return seg, nil
}

// Cumulative returns the append-only finalized transcript.
func (b *Buffer) Cumulative() []Segment {
	return b.cumulative
}

func (b *Buffer) CumulativeLen() int {
	return len(b.cumulative)
}

func (b *Buffer) PendingTokens() int {
	return b.pendingTokens
}

// OldestPending reports the arrival time of the oldest un-batched segment.
func (b *Buffer) OldestPending() (time.Time, bool) {
	if len(b.pending) == 0 {
		return time.Time{}, false
	}
	return b.pending[0].SpokenAt, true
}

// SnapshotPending returns the current pending text and a mark identifying the
// snapshotted portion. Content ingested after the snapshot is not covered by
// the mark and survives a later ClearPending.
func (b *Buffer) SnapshotPending() (string, int) {
	if len(b.pending) == 0 {
		return "", 0
	}
	lines := make([]string, 0, len(b.pending))
	for _, seg := range b.pending {
		lines = append(lines, seg.Text)
	}
	return strings.Join(lines, "\n"), len(b.pending)
}

// ClearPending drops the first mark pending segments after a successful batch.
// On batch failure the caller simply never clears, so the next trigger retries
// with the same or grown content.
func (b *Buffer) ClearPending(mark int) {
	if mark <= 0 {
		return
	}
	if mark > len(b.pending) {
		mark = len(b.pending)
	}
	for _, seg := range b.pending[:mark] {
		b.pendingTokens -= EstimateTokens(seg.Text)
	}
	b.pending = append([]Segment(nil), b.pending[mark:]...)
	if b.pendingTokens < 0 {
		b.pendingTokens = 0
	}
}

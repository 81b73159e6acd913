// Package inference defines the uniform contract for the external AI
// capabilities: speaker attribution, summarization and task extraction.
// Callers always receive a well-formed structured result; unparseable model
// output degrades the result instead of propagating a parse error.
package inference

import (
	"context"
	"strings"
)

type Kind string

const (
	KindSpeakerID Kind = "speaker-id"
	KindSummary   Kind = "summary"
	KindTasks     Kind = "task-extraction"
	KindCombined  Kind = "combined"
)

// Context carries session knowledge that improves inference quality: known
// participant names for speaker attribution and the prior summary for
// incremental summarization.
type Context struct {
	ParticipantNames []string
	PriorSummary     string
}

type TaskDraft struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Assignee    string `json:"assignee"`
	Priority    string `json:"priority"`
}

type SpeakerTurn struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

type Result struct {
	Kind     Kind
	Summary  string
	Tasks    []TaskDraft
	Speakers []SpeakerTurn

	// Degraded marks a result synthesized from unparseable model output. The
	// pipeline proceeds and reports degradation instead of crashing the
	// session.
	Degraded    bool
	ErrorMarker string
	RawResponse string
}

// Invoker is implemented by the external inference backend adapter. A non-nil
// error is always fault-classified (transient or permanent); parse problems
// never surface as errors.
type Invoker interface {
	Invoke(ctx context.Context, kind Kind, slices []string, inv Context) (Result, error)
}

// Merge combines per-slice results preserving slice order.
func Merge(kind Kind, results []Result) Result {
	merged := Result{Kind: kind}
	var summaries []string
	for _, r := range results {
		if r.Summary != "" {
			summaries = append(summaries, r.Summary)
		}
		merged.Tasks = append(merged.Tasks, r.Tasks...)
		merged.Speakers = append(merged.Speakers, r.Speakers...)
		if r.Degraded {
			merged.Degraded = true
			if merged.ErrorMarker == "" {
				merged.ErrorMarker = r.ErrorMarker
			}
			merged.RawResponse = r.RawResponse
		}
	}
	merged.Summary = strings.Join(summaries, "\n")
	return merged
}

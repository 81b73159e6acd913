package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/scribelab/scribed/internal/config"
	"github.com/scribelab/scribed/internal/fault"
	"github.com/scribelab/scribed/internal/inference"
	"github.com/scribelab/scribed/internal/repository"
	"github.com/scribelab/scribed/internal/session"
	"github.com/scribelab/scribed/internal/transcript"
	"github.com/scribelab/scribed/internal/worker"
)

type nopRepository struct{}

func (nopRepository) CreateMeeting(_ context.Context, input repository.CreateMeetingInput) (*repository.Meeting, error) {
	return &repository.Meeting{ID: input.MeetingID}, nil
}
func (nopRepository) CompleteMeeting(context.Context, repository.CompleteMeetingInput) error {
	return nil
}
func (nopRepository) UpsertParticipant(context.Context, repository.UpsertParticipantInput) error {
	return nil
}
func (nopRepository) InsertSegment(context.Context, repository.InsertSegmentInput) error { return nil }
func (nopRepository) ListSegmentsByMeetingID(context.Context, string) ([]repository.TranscriptSegment, error) {
	return nil, nil
}
func (nopRepository) InsertArtifact(_ context.Context, input repository.InsertArtifactInput) (*repository.Artifact, error) {
	return &repository.Artifact{ID: input.ArtifactID}, nil
}
func (nopRepository) UpdateDispatchStatus(context.Context, repository.UpdateDispatchStatusInput) error {
	return nil
}
func (nopRepository) ListDispatchStatuses(context.Context, string) ([]repository.DispatchStatus, error) {
	return nil, nil
}

func (nopRepository) ListArtifactsPendingDispatch(context.Context, int) ([]repository.Artifact, error) {
	return nil, nil
}

type mockInvoker struct {
	mu      sync.Mutex
	calls   [][]string
	err     error
	result  inference.Result
	release chan struct{}
}

func (m *mockInvoker) Invoke(ctx context.Context, kind inference.Kind, slices []string, _ inference.Context) (inference.Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, slices)
	release := m.release
	err := m.err
	result := m.result
	m.mu.Unlock()
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return inference.Result{}, fault.New(fault.ExternalTransient, "mock", ctx.Err())
		}
	}
	if err != nil {
		return inference.Result{}, err
	}
	result.Kind = kind
	return result, nil
}

func (m *mockInvoker) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func batchConfig() *config.Config {
	return &config.Config{
		MinFragmentChars:    3,
		DuplicateSimilarity: 0.9,
		RecentFragmentCap:   50,
		BatchTokenBudget:    2000,
		BatchTriggerTokens:  5,
		BatchMaxAge:         45 * time.Second,
		BatchTickInterval:   5 * time.Millisecond,
		BatchSliceOverlap:   50,
		ExternalCallTimeout: time.Second,
		SessionMaxIdle:      30 * time.Minute,
		SweepInterval:       time.Minute,
	}
}

func newTestSession(t *testing.T, cfg *config.Config) *session.Session {
	t.Helper()
	reg := session.NewRegistry(cfg, nopRepository{})
	return reg.GetOrCreate(context.Background(), "meeting-1", session.PlatformMeet)
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestMaybeTrigger_BelowThresholdDoesNothing(t *testing.T) {
	cfg := batchConfig()
	cfg.BatchTriggerTokens = 1000
	invoker := &mockInvoker{}
	pool := worker.NewPool(1, 4)
	defer pool.Shutdown(context.Background())
	sc := NewScheduler(cfg, pool, invoker)

	s := newTestSession(t, cfg)
	if _, err := s.Ingest(transcript.Fragment{Text: "short remark"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sc.MaybeTrigger(context.Background(), s, false) {
		t.Fatal("expected no trigger below the token threshold")
	}
	if invoker.callCount() != 0 {
		t.Fatalf("expected no inference calls, got %d", invoker.callCount())
	}
}

func TestMaybeTrigger_SuccessClearsPending(t *testing.T) {
	cfg := batchConfig()
	invoker := &mockInvoker{result: inference.Result{Summary: "the team discussed rollout"}}
	pool := worker.NewPool(1, 4)
	defer pool.Shutdown(context.Background())
	sc := NewScheduler(cfg, pool, invoker)

	s := newTestSession(t, cfg)
	if _, err := s.Ingest(transcript.Fragment{Text: "we agreed to ship the rollout next week"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sc.MaybeTrigger(context.Background(), s, false) {
		t.Fatal("expected a trigger above the token threshold")
	}
	waitUntil(t, time.Second, func() bool { return s.PendingTokens() == 0 })
	if invoker.callCount() != 1 {
		t.Fatalf("expected one inference call, got %d", invoker.callCount())
	}
	if s.PriorSummary() != "the team discussed rollout" {
		t.Fatalf("expected prior summary to advance, got %q", s.PriorSummary())
	}
}

func TestMaybeTrigger_AtMostOneInFlight(t *testing.T) {
	cfg := batchConfig()
	release := make(chan struct{})
	invoker := &mockInvoker{release: release}
	pool := worker.NewPool(2, 8)
	defer pool.Shutdown(context.Background())
	sc := NewScheduler(cfg, pool, invoker)

	s := newTestSession(t, cfg)
	if _, err := s.Ingest(transcript.Fragment{Text: "first stretch of conversation to batch"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sc.MaybeTrigger(context.Background(), s, false) {
		t.Fatal("expected the first trigger to fire")
	}
	waitUntil(t, time.Second, func() bool { return invoker.callCount() == 1 })

	if _, err := s.Ingest(transcript.Fragment{Text: "second stretch arriving mid flight"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sc.MaybeTrigger(context.Background(), s, false) {
		t.Fatal("expected the second trigger to defer, not issue")
	}
	if invoker.callCount() != 1 {
		t.Fatalf("expected a single in-flight call, got %d", invoker.callCount())
	}

	close(release)
	waitUntil(t, time.Second, func() bool { return !s.JobInFlight(string(inference.KindCombined)) })
	if !s.TakeDeferred(string(inference.KindCombined)) {
		t.Fatal("expected the coalesced trigger to be recorded as deferred")
	}
}

func TestRun_FailurePreservesPending(t *testing.T) {
	cfg := batchConfig()
	invoker := &mockInvoker{err: fault.New(fault.ExternalTransient, "inference", errors.New("upstream 503"))}
	pool := worker.NewPool(1, 4)
	defer pool.Shutdown(context.Background())
	sc := NewScheduler(cfg, pool, invoker)

	s := newTestSession(t, cfg)
	if _, err := s.Ingest(transcript.Fragment{Text: "content that must not be lost"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	before := s.PendingTokens()

	if !sc.MaybeTrigger(context.Background(), s, false) {
		t.Fatal("expected a trigger")
	}
	waitUntil(t, time.Second, func() bool { return invoker.callCount() == 1 })
	waitUntil(t, time.Second, func() bool { return !s.JobInFlight(string(inference.KindCombined)) })

	if s.PendingTokens() != before {
		t.Fatalf("expected pending content intact after failure, had %d tokens, got %d", before, s.PendingTokens())
	}

	// The content rides along in the next batch once the backend recovers.
	invoker.mu.Lock()
	invoker.err = nil
	invoker.mu.Unlock()
	if !sc.MaybeTrigger(context.Background(), s, false) {
		t.Fatal("expected a retry trigger")
	}
	waitUntil(t, time.Second, func() bool { return s.PendingTokens() == 0 })
	invoker.mu.Lock()
	retried := invoker.calls[1]
	invoker.mu.Unlock()
	if len(retried) == 0 || !strings.Contains(retried[0], "must not be lost") {
		t.Fatalf("expected the retried batch to carry the failed content, got %v", retried)
	}
}

func TestRun_MidFlightIngestSurvivesClear(t *testing.T) {
	cfg := batchConfig()
	release := make(chan struct{})
	invoker := &mockInvoker{release: release}
	pool := worker.NewPool(1, 4)
	defer pool.Shutdown(context.Background())
	sc := NewScheduler(cfg, pool, invoker)

	s := newTestSession(t, cfg)
	if _, err := s.Ingest(transcript.Fragment{Text: "snapshotted before the job started"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sc.MaybeTrigger(context.Background(), s, false) {
		t.Fatal("expected a trigger")
	}
	waitUntil(t, time.Second, func() bool { return invoker.callCount() == 1 })

	if _, err := s.Ingest(transcript.Fragment{Text: "arrived while the job was running"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	close(release)
	waitUntil(t, time.Second, func() bool { return !s.JobInFlight(string(inference.KindCombined)) })

	text, mark := s.SnapshotPending()
	if mark != 1 || !strings.Contains(text, "while the job was running") {
		t.Fatalf("expected only the mid-flight segment to survive, got mark=%d text=%q", mark, text)
	}
}

func TestFinalFlush_ForcesBelowThreshold(t *testing.T) {
	cfg := batchConfig()
	cfg.BatchTriggerTokens = 100000
	invoker := &mockInvoker{result: inference.Result{Summary: "wrap-up"}}
	pool := worker.NewPool(1, 4)
	defer pool.Shutdown(context.Background())
	sc := NewScheduler(cfg, pool, invoker)

	s := newTestSession(t, cfg)
	if _, err := s.Ingest(transcript.Fragment{Text: "closing remarks"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sc.FinalFlush(context.Background(), s)
	if invoker.callCount() != 1 {
		t.Fatalf("expected one forced inference call, got %d", invoker.callCount())
	}
	if s.PendingTokens() != 0 {
		t.Fatal("expected the final flush to clear pending content")
	}
}

func TestFinalFlush_EmptyBufferSkipsCall(t *testing.T) {
	cfg := batchConfig()
	invoker := &mockInvoker{}
	pool := worker.NewPool(1, 4)
	defer pool.Shutdown(context.Background())
	sc := NewScheduler(cfg, pool, invoker)

	s := newTestSession(t, cfg)
	sc.FinalFlush(context.Background(), s)
	if invoker.callCount() != 0 {
		t.Fatalf("expected no call for empty buffer, got %d", invoker.callCount())
	}
}

func TestRunTicker_PicksUpDeferredJobs(t *testing.T) {
	cfg := batchConfig()
	cfg.BatchTriggerTokens = 100000
	invoker := &mockInvoker{result: inference.Result{Summary: "tick"}}
	pool := worker.NewPool(1, 4)
	defer pool.Shutdown(context.Background())
	sc := NewScheduler(cfg, pool, invoker)

	reg := session.NewRegistry(cfg, nopRepository{})
	s := reg.GetOrCreate(context.Background(), "meeting-1", session.PlatformMeet)
	if _, err := s.Ingest(transcript.Fragment{Text: "deferred content waiting for a tick"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Simulate a trigger that fired while a job was in flight.
	if !s.TryAcquireJob(string(inference.KindCombined)) {
		t.Fatal("expected to acquire the job slot")
	}
	if s.TryAcquireJob(string(inference.KindCombined)) {
		t.Fatal("expected the slot to be held")
	}
	s.ReleaseJob(string(inference.KindCombined))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sc.RunTicker(ctx, reg)

	waitUntil(t, time.Second, func() bool { return invoker.callCount() == 1 })
	waitUntil(t, time.Second, func() bool { return s.PendingTokens() == 0 })
}

func TestHooks_CompletedReceivesResult(t *testing.T) {
	cfg := batchConfig()
	invoker := &mockInvoker{result: inference.Result{
		Summary: "summary text",
		Tasks:   []inference.TaskDraft{{Title: "follow up with vendor"}},
	}}
	pool := worker.NewPool(1, 4)
	defer pool.Shutdown(context.Background())
	sc := NewScheduler(cfg, pool, invoker)

	hooks := &recordingHooks{}
	sc.SetHooks(hooks)

	s := newTestSession(t, cfg)
	if _, err := s.Ingest(transcript.Fragment{Text: "please follow up with the vendor"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sc.MaybeTrigger(context.Background(), s, false) {
		t.Fatal("expected a trigger")
	}
	waitUntil(t, time.Second, func() bool { return hooks.completedCount() == 1 })
	if hooks.startedCount() != 1 {
		t.Fatalf("expected one started hook, got %d", hooks.startedCount())
	}
	got := hooks.lastResult()
	if got.Summary != "summary text" || len(got.Tasks) != 1 {
		t.Fatalf("unexpected result delivered to hooks: %+v", got)
	}
}

type recordingHooks struct {
	mu        sync.Mutex
	started   int
	completed int
	failed    int
	result    inference.Result
}

func (h *recordingHooks) BatchStarted(*session.Session, Job) {
	h.mu.Lock()
	h.started++
	h.mu.Unlock()
}

func (h *recordingHooks) BatchCompleted(_ context.Context, _ *session.Session, _ Job, r inference.Result) {
	h.mu.Lock()
	h.completed++
	h.result = r
	h.mu.Unlock()
}

func (h *recordingHooks) BatchFailed(*session.Session, Job, error) {
	h.mu.Lock()
	h.failed++
	h.mu.Unlock()
}

func (h *recordingHooks) startedCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.started
}

func (h *recordingHooks) completedCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.completed
}

func (h *recordingHooks) lastResult() inference.Result {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result
}

func TestSplitSlices_SmallTextSingleSlice(t *testing.T) {
	slices := SplitSlices("a short discussion. nothing more.", 2000, 50)
	if len(slices) != 1 {
		t.Fatalf("expected one slice, got %d", len(slices))
	}
}

func TestSplitSlices_BreaksOnSentenceBoundaries(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 40; i++ {
		fmt.Fprintf(&b, "sentence number %d carries enough words to count. ", i)
	}
	slices := SplitSlices(b.String(), 100, 20)
	if len(slices) < 2 {
		t.Fatalf("expected multiple slices, got %d", len(slices))
	}
	for i, s := range slices {
		if transcript.EstimateTokens(s) > 100 {
			t.Fatalf("slice %d exceeds the token budget: %d tokens", i, transcript.EstimateTokens(s))
		}
		if !strings.HasSuffix(s, ".") {
			t.Fatalf("slice %d does not end on a sentence boundary: %q", i, s)
		}
	}
}

func TestSplitSlices_ConsecutiveSlicesOverlap(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 40; i++ {
		fmt.Fprintf(&b, "sentence number %d carries enough words to count. ", i)
	}
	slices := SplitSlices(b.String(), 100, 20)
	if len(slices) < 2 {
		t.Fatalf("expected multiple slices, got %d", len(slices))
	}
	first := splitSentences(slices[0])
	tail := first[len(first)-1]
	if !strings.Contains(slices[1], tail) {
		t.Fatalf("expected slice 2 to begin with the tail of slice 1, tail=%q slice=%q", tail, slices[1])
	}
}

func TestSplitSlices_OversizedSentenceHardCut(t *testing.T) {
	long := strings.Repeat("word ", 500) // one 2500-char sentence, no punctuation
	slices := SplitSlices(long, 100, 0)
	if len(slices) < 2 {
		t.Fatalf("expected the oversized sentence to be cut, got %d slices", len(slices))
	}
	for i, s := range slices {
		if transcript.EstimateTokens(s) > 100 {
			t.Fatalf("slice %d exceeds the token budget", i)
		}
	}
}

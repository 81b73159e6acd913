package batch

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/scribelab/scribed/internal/config"
	"github.com/scribelab/scribed/internal/inference"
	"github.com/scribelab/scribed/internal/metrics"
	"github.com/scribelab/scribed/internal/session"
	"github.com/scribelab/scribed/internal/worker"
)

// Job is one unit of inference work cut from a session's pending buffer.
type Job struct {
	ID        string
	MeetingID string
	Kind      inference.Kind
	Slices    []string
	CreatedAt time.Time

	mark int
}

// Hooks receives job lifecycle notifications. The ingest pipeline implements
// it to persist artifacts, dispatch them and push status frames to the client.
type Hooks interface {
	BatchStarted(s *session.Session, job Job)
	BatchCompleted(ctx context.Context, s *session.Session, job Job, result inference.Result)
	BatchFailed(s *session.Session, job Job, err error)
}

// Scheduler decides when a session's pending transcript becomes an inference
// job and runs it on the shared worker pool. Per session and kind at most one
// job is ever outstanding; triggers arriving meanwhile are deferred to the
// next tick, never issued concurrently and never dropped.
type Scheduler struct {
	cfg     *config.Config
	pool    *worker.Pool
	invoker inference.Invoker
	hooks   Hooks
}

func NewScheduler(cfg *config.Config, pool *worker.Pool, invoker inference.Invoker) *Scheduler {
	return &Scheduler{cfg: cfg, pool: pool, invoker: invoker}
}

// SetHooks wires the lifecycle hooks. Set once during startup.
func (sc *Scheduler) SetHooks(h Hooks) {
	sc.hooks = h
}

// MaybeTrigger evaluates the trigger conditions for one session and, when met,
// snapshots the pending buffer and submits a job. It never blocks on the
// inference call itself. force bypasses the thresholds, for final flushes.
func (sc *Scheduler) MaybeTrigger(ctx context.Context, s *session.Session, force bool) bool {
	if !force && !sc.shouldTrigger(s) {
		return false
	}
	kind := inference.KindCombined

	if !s.TryAcquireJob(string(kind)) {
		slog.Debug("batch trigger deferred, job in flight", "meeting_id", s.ID, "kind", kind)
		return false
	}

	text, mark := s.SnapshotPending()
	if mark == 0 {
		s.ReleaseJob(string(kind))
		return false
	}

	job := Job{
		ID:        uuid.NewString(),
		MeetingID: s.ID,
		Kind:      kind,
		Slices:    SplitSlices(text, sc.cfg.BatchTokenBudget, sc.cfg.BatchSliceOverlap),
		CreatedAt: time.Now(),
		mark:      mark,
	}

	if err := sc.pool.Submit(func(taskCtx context.Context) {
		sc.run(taskCtx, s, job)
	}); err != nil {
		// Pending stays intact; the next tick retries the trigger.
		s.ReleaseJob(string(kind))
		slog.Warn("batch submit rejected", "error", err, "meeting_id", s.ID)
		return false
	}

	slog.Info("batch job submitted",
		"job_id", job.ID, "meeting_id", s.ID, "kind", kind, "slices", len(job.Slices))
	if sc.hooks != nil {
		sc.hooks.BatchStarted(s, job)
	}
	return true
}

// FinalFlush forces any remaining pending content through a job and runs it
// synchronously. Used on meeting end and idle eviction, where the session is
// about to leave the registry and a deferred retry would never fire.
func (sc *Scheduler) FinalFlush(ctx context.Context, s *session.Session) {
	kind := inference.KindCombined
	if !s.TryAcquireJob(string(kind)) {
		// An in-flight job holds a snapshot already; wait for its release so
		// the remainder is not summarized concurrently.
		deadline := time.Now().Add(sc.cfg.ExternalCallTimeout)
		for s.JobInFlight(string(kind)) && time.Now().Before(deadline) {
			time.Sleep(50 * time.Millisecond)
		}
		if !s.TryAcquireJob(string(kind)) {
			slog.Warn("final flush skipped, job still in flight", "meeting_id", s.ID)
			return
		}
	}
	text, mark := s.SnapshotPending()
	if mark == 0 {
		s.ReleaseJob(string(kind))
		return
	}
	job := Job{
		ID:        uuid.NewString(),
		MeetingID: s.ID,
		Kind:      kind,
		Slices:    SplitSlices(text, sc.cfg.BatchTokenBudget, sc.cfg.BatchSliceOverlap),
		CreatedAt: time.Now(),
		mark:      mark,
	}
	slog.Info("final flush", "job_id", job.ID, "meeting_id", s.ID, "slices", len(job.Slices))
	if sc.hooks != nil {
		sc.hooks.BatchStarted(s, job)
	}
	sc.run(ctx, s, job)
}

// RunTicker periodically re-evaluates every session, picking up age-based
// triggers and deferred jobs, until ctx is cancelled.
func (sc *Scheduler) RunTicker(ctx context.Context, reg *session.Registry) {
	ticker := time.NewTicker(sc.cfg.BatchTickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, s := range reg.All() {
				force := s.TakeDeferred(string(inference.KindCombined))
				sc.MaybeTrigger(ctx, s, force)
			}
		}
	}
}

func (sc *Scheduler) shouldTrigger(s *session.Session) bool {
	if s.PendingTokens() >= sc.cfg.BatchTriggerTokens {
		return true
	}
	if oldest, ok := s.OldestPending(); ok && time.Since(oldest) >= sc.cfg.BatchMaxAge {
		return true
	}
	return false
}

func (sc *Scheduler) run(ctx context.Context, s *session.Session, job Job) {
	defer s.ReleaseJob(string(job.Kind))

	timeout := sc.cfg.ExternalCallTimeout * time.Duration(len(job.Slices))
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := sc.invoker.Invoke(callCtx, job.Kind, job.Slices, inference.Context{
		ParticipantNames: s.ParticipantNames(),
		PriorSummary:     s.PriorSummary(),
	})
	if err != nil {
		// The snapshot is never cleared on failure; the content rides along in
		// the next batch.
		metrics.BatchJobs.WithLabelValues(string(job.Kind), "failure").Inc()
		slog.Error("batch job failed", "error", err, "job_id", job.ID, "meeting_id", s.ID)
		if sc.hooks != nil {
			sc.hooks.BatchFailed(s, job, err)
		}
		return
	}

	s.ClearPending(job.mark)
	s.SetPriorSummary(result.Summary)
	metrics.BatchJobs.WithLabelValues(string(job.Kind), outcomeLabel(result)).Inc()
	slog.Info("batch job completed",
		"job_id", job.ID, "meeting_id", s.ID, "kind", job.Kind,
		"tasks", len(result.Tasks), "degraded", result.Degraded,
		"elapsed", time.Since(job.CreatedAt))
	if sc.hooks != nil {
		sc.hooks.BatchCompleted(ctx, s, job, result)
	}
}

func outcomeLabel(r inference.Result) string {
	if r.Degraded {
		return "degraded"
	}
	return "success"
}

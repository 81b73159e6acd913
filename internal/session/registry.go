package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/scribelab/scribed/internal/config"
	"github.com/scribelab/scribed/internal/metrics"
	"github.com/scribelab/scribed/internal/repository"
	"github.com/scribelab/scribed/internal/transcript"
)

var ErrNotFound = errors.New("session not found")

// Finalizer runs the final flush for a session before it leaves the registry:
// a forced batch trigger so buffered transcript content is never lost on end
// or eviction.
type Finalizer func(ctx context.Context, s *Session)

// Registry holds one Session per active meeting. Its map is the only globally
// shared mutable structure; the lock guards insert/lookup/remove only, and
// lookups hand out the session for independent use.
type Registry struct {
	cfg  *config.Config
	repo repository.Repository

	mu        sync.Mutex
	sessions  map[string]*Session
	finalizer Finalizer
}

func NewRegistry(cfg *config.Config, repo repository.Repository) *Registry {
	return &Registry{
		cfg:      cfg,
		repo:     repo,
		sessions: make(map[string]*Session),
	}
}

// SetFinalizer wires the final-flush hook. Set once during startup, before
// traffic arrives; it breaks the construction cycle between the registry and
// the batch scheduler.
func (r *Registry) SetFinalizer(f Finalizer) {
	r.mu.Lock()
	r.finalizer = f
	r.mu.Unlock()
}

// GetOrCreate returns the existing session for meetingID or atomically creates
// one. The meeting row is persisted outside the registry lock; persistence
// failure is logged, not fatal, so ingestion keeps flowing.
func (r *Registry) GetOrCreate(ctx context.Context, meetingID string, platform Platform) *Session {
	r.mu.Lock()
	s, ok := r.sessions[meetingID]
	if !ok {
		buffer := transcript.NewBuffer(r.cfg.MinFragmentChars, r.cfg.DuplicateSimilarity, r.cfg.RecentFragmentCap)
		s = newSession(meetingID, platform, buffer)
		r.sessions[meetingID] = s
		metrics.ActiveSessions.Set(float64(len(r.sessions)))
	}
	r.mu.Unlock()
	if ok {
		return s
	}

	slog.Info("session created", "meeting_id", meetingID, "platform", platform)
	if _, err := r.repo.CreateMeeting(ctx, repository.CreateMeetingInput{
		MeetingID: meetingID,
		Platform:  string(platform),
		StartedAt: s.CreatedAt,
	}); err != nil {
		slog.Error("failed to persist meeting", "error", err, "meeting_id", meetingID)
	}
	return s
}

func (r *Registry) Get(meetingID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[meetingID]
	return s, ok
}

// All snapshots the current sessions, for periodic scans.
func (r *Registry) All() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// End triggers the final flush for meetingID and removes it. Ending an unknown
// meeting reports ErrNotFound but is never fatal to the caller.
func (r *Registry) End(ctx context.Context, meetingID string) error {
	s, finalize, ok := r.take(meetingID)
	if !ok {
		slog.Info("end requested for unknown meeting", "meeting_id", meetingID)
		return ErrNotFound
	}
	r.finish(ctx, s, finalize, "meeting ended")
	return nil
}

// SweepIdle removes sessions with no activity for longer than maxIdle, forcing
// a final flush first. This is the cap on unbounded memory growth from
// abandoned meetings.
func (r *Registry) SweepIdle(ctx context.Context, maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	r.mu.Lock()
	var idle []*Session
	for _, s := range r.sessions {
		if s.IdleSince().Before(cutoff) {
			idle = append(idle, s)
		}
	}
	for _, s := range idle {
		delete(r.sessions, s.ID)
	}
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	finalize := r.finalizer
	r.mu.Unlock()

	for _, s := range idle {
		r.finish(ctx, s, finalize, "idle timeout")
	}
	return len(idle)
}

// StopAll flushes and removes every session, for shutdown.
func (r *Registry) StopAll(ctx context.Context) int {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.sessions = make(map[string]*Session)
	metrics.ActiveSessions.Set(0)
	finalize := r.finalizer
	r.mu.Unlock()

	for _, s := range all {
		r.finish(ctx, s, finalize, "server shutdown")
	}
	return len(all)
}

// RunSweeper loops SweepIdle until ctx is cancelled.
func (r *Registry) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.SweepIdle(ctx, r.cfg.SessionMaxIdle); n > 0 {
				slog.Info("idle sessions evicted", "count", n)
			}
		}
	}
}

func (r *Registry) take(meetingID string) (*Session, Finalizer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[meetingID]
	if !ok {
		return nil, nil, false
	}
	delete(r.sessions, meetingID)
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	return s, r.finalizer, true
}

func (r *Registry) finish(ctx context.Context, s *Session, finalize Finalizer, reason string) {
	slog.Info("session finishing", "meeting_id", s.ID, "reason", reason, "segments", len(s.CumulativeTranscript()))
	if finalize != nil {
		finalize(ctx, s)
	}
	if err := r.repo.CompleteMeeting(ctx, repository.CompleteMeetingInput{
		MeetingID: s.ID,
		EndedAt:   time.Now(),
	}); err != nil {
		slog.Error("failed to complete meeting", "error", err, "meeting_id", s.ID)
	}
}

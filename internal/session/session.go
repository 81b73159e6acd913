package session

import (
	"sync"
	"time"

	"github.com/scribelab/scribed/internal/transcript"
)

type Platform string

const (
	PlatformMeet    Platform = "meet"
	PlatformZoom    Platform = "zoom"
	PlatformTeams   Platform = "teams"
	PlatformWebex   Platform = "webex"
	PlatformUnknown Platform = "unknown"
)

func ParsePlatform(s string) Platform {
	switch Platform(s) {
	case PlatformMeet, PlatformZoom, PlatformTeams, PlatformWebex:
		return Platform(s)
	default:
		return PlatformUnknown
	}
}

type Role string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
)

type Participant struct {
	ID         string
	Name       string
	PlatformID string
	Role       Role
	Active     bool
	JoinedAt   time.Time
	LeftAt     *time.Time
}

// Session owns all mutable state for one ongoing meeting. Concurrent events
// for the same meeting serialize on the session mutex; events for different
// meetings proceed fully in parallel. The registry lock is never held while a
// session is being worked on.
type Session struct {
	ID        string
	Platform  Platform
	CreatedAt time.Time

	mu           sync.Mutex
	participants map[string]*Participant
	buffer       *transcript.Buffer
	lastActivity time.Time
	priorSummary string

	// inFlight and deferred enforce at most one outstanding batch job per
	// kind; a trigger that fires while a job is outstanding sets deferred and
	// is coalesced into the next tick rather than issued or dropped.
	inFlight map[string]bool
	deferred map[string]bool
}

func newSession(id string, platform Platform, buffer *transcript.Buffer) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		Platform:     platform,
		CreatedAt:    now,
		participants: make(map[string]*Participant),
		buffer:       buffer,
		lastActivity: now,
		inFlight:     make(map[string]bool),
		deferred:     make(map[string]bool),
	}
}

func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) IdleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// MergeParticipant upserts one participant snapshot entry. A snapshot carrying
// a previously unseen host flag promotes the role; the flag is never demoted
// by a later snapshot that omits it. Reports whether the roster changed.
func (s *Session) MergeParticipant(p Participant) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.participants[p.ID]
	if !ok {
		added := p
		if added.Role == "" {
			added.Role = RoleGuest
		}
		if added.JoinedAt.IsZero() {
			added.JoinedAt = time.Now()
		}
		added.Active = true
		s.participants[p.ID] = &added
		return true
	}
	changed := false
	if p.Name != "" && p.Name != existing.Name {
		existing.Name = p.Name
		changed = true
	}
	if p.PlatformID != "" && p.PlatformID != existing.PlatformID {
		existing.PlatformID = p.PlatformID
		changed = true
	}
	if p.Role == RoleHost && existing.Role != RoleHost {
		existing.Role = RoleHost
		changed = true
	}
	return changed
}

// MarkLeft flags a participant as departed without removing them from the
// roster; their attributed speech keeps a name.
func (s *Session) MarkLeft(participantID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[participantID]
	if !ok || !p.Active {
		return false
	}
	now := time.Now()
	p.Active = false
	p.LeftAt = &now
	return true
}

func (s *Session) Participants() []Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Participant, 0, len(s.participants))
	for _, p := range s.participants {
		out = append(out, *p)
	}
	return out
}

func (s *Session) ParticipantNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.participants))
	for _, p := range s.participants {
		if p.Name != "" {
			names = append(names, p.Name)
		}
	}
	return names
}

func (s *Session) ActiveParticipantCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.participants {
		if p.Active {
			n++
		}
	}
	return n
}

// Ingest feeds one fragment through deduplication into the transcript. A nil
// error means the fragment was accepted and lastActivity advanced.
func (s *Session) Ingest(f transcript.Fragment) (transcript.Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seg, err := s.buffer.Ingest(f)
	if err != nil {
		return transcript.Segment{}, err
	}
	s.lastActivity = time.Now()
	return seg, nil
}

func (s *Session) CumulativeTranscript() []transcript.Segment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffer.Cumulative()
}

func (s *Session) PendingTokens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffer.PendingTokens()
}

func (s *Session) OldestPending() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffer.OldestPending()
}

func (s *Session) SnapshotPending() (string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffer.SnapshotPending()
}

func (s *Session) ClearPending(mark int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffer.ClearPending(mark)
}

// TryAcquireJob claims the in-flight slot for a job kind. When the slot is
// taken the trigger is recorded as deferred and false is returned.
func (s *Session) TryAcquireJob(kind string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[kind] {
		s.deferred[kind] = true
		return false
	}
	s.inFlight[kind] = true
	return true
}

// ReleaseJob clears the in-flight slot. Called in a guaranteed-cleanup path on
// success, failure and timeout alike.
func (s *Session) ReleaseJob(kind string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, kind)
}

// TakeDeferred consumes the deferred flag for a kind.
func (s *Session) TakeDeferred(kind string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.deferred[kind] {
		return false
	}
	delete(s.deferred, kind)
	return true
}

func (s *Session) JobInFlight(kind string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight[kind]
}

func (s *Session) PriorSummary() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.priorSummary
}

func (s *Session) SetPriorSummary(summary string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if summary != "" {
		s.priorSummary = summary
	}
}

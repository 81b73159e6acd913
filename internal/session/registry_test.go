package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/scribelab/scribed/internal/config"
	"github.com/scribelab/scribed/internal/repository"
	"github.com/scribelab/scribed/internal/transcript"
)

type mockRepository struct {
	mu             sync.Mutex
	createdIDs     []string
	completedIDs   []string
	insertSegments []repository.InsertSegmentInput
}

func (m *mockRepository) CreateMeeting(_ context.Context, input repository.CreateMeetingInput) (*repository.Meeting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createdIDs = append(m.createdIDs, input.MeetingID)
	return &repository.Meeting{
		ID:        input.MeetingID,
		Platform:  input.Platform,
		StartedAt: input.StartedAt,
		Status:    repository.MeetingStatusActive,
	}, nil
}

func (m *mockRepository) CompleteMeeting(_ context.Context, input repository.CompleteMeetingInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completedIDs = append(m.completedIDs, input.MeetingID)
	return nil
}

func (m *mockRepository) UpsertParticipant(_ context.Context, _ repository.UpsertParticipantInput) error {
	return nil
}

func (m *mockRepository) InsertSegment(_ context.Context, input repository.InsertSegmentInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertSegments = append(m.insertSegments, input)
	return nil
}

func (m *mockRepository) ListSegmentsByMeetingID(_ context.Context, _ string) ([]repository.TranscriptSegment, error) {
	return nil, nil
}

func (m *mockRepository) InsertArtifact(_ context.Context, input repository.InsertArtifactInput) (*repository.Artifact, error) {
	return &repository.Artifact{ID: input.ArtifactID, MeetingID: input.MeetingID, Kind: input.Kind, Title: input.Title}, nil
}

func (m *mockRepository) UpdateDispatchStatus(_ context.Context, _ repository.UpdateDispatchStatusInput) error {
	return nil
}

func (m *mockRepository) ListDispatchStatuses(_ context.Context, _ string) ([]repository.DispatchStatus, error) {
	return nil, nil
}

func (m *mockRepository) ListArtifactsPendingDispatch(_ context.Context, _ int) ([]repository.Artifact, error) {
	return nil, nil
}

func (m *mockRepository) completed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.completedIDs...)
}

func testConfig() *config.Config {
	return &config.Config{
		MinFragmentChars:    3,
		DuplicateSimilarity: 0.9,
		RecentFragmentCap:   50,
		SessionMaxIdle:      30 * time.Minute,
		SweepInterval:       time.Minute,
	}
}

func TestGetOrCreate_Idempotent(t *testing.T) {
	repo := &mockRepository{}
	r := NewRegistry(testConfig(), repo)

	first := r.GetOrCreate(context.Background(), "meeting-1", PlatformMeet)
	second := r.GetOrCreate(context.Background(), "meeting-1", PlatformZoom)
	if first != second {
		t.Fatal("expected the same session for the same meeting id")
	}
	if first.Platform != PlatformMeet {
		t.Fatalf("expected original platform to win, got %s", first.Platform)
	}
	if len(repo.createdIDs) != 1 {
		t.Fatalf("expected one meeting row, got %d", len(repo.createdIDs))
	}
}

func TestGetOrCreate_ConcurrentSingleSession(t *testing.T) {
	repo := &mockRepository{}
	r := NewRegistry(testConfig(), repo)

	var wg sync.WaitGroup
	sessions := make([]*Session, 16)
	for i := range sessions {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			sessions[n] = r.GetOrCreate(context.Background(), "meeting-1", PlatformMeet)
		}(i)
	}
	wg.Wait()
	for _, s := range sessions {
		if s != sessions[0] {
			t.Fatal("concurrent GetOrCreate returned distinct sessions")
		}
	}
	if r.Count() != 1 {
		t.Fatalf("expected one session, got %d", r.Count())
	}
}

func TestEnd_RemovesAndFinalizes(t *testing.T) {
	repo := &mockRepository{}
	r := NewRegistry(testConfig(), repo)
	var finalized []string
	r.SetFinalizer(func(_ context.Context, s *Session) {
		finalized = append(finalized, s.ID)
	})

	r.GetOrCreate(context.Background(), "meeting-1", PlatformMeet)
	if err := r.End(context.Background(), "meeting-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Count() != 0 {
		t.Fatalf("expected empty registry, got %d", r.Count())
	}
	if len(finalized) != 1 || finalized[0] != "meeting-1" {
		t.Fatalf("expected finalizer for meeting-1, got %v", finalized)
	}
	if got := repo.completed(); len(got) != 1 || got[0] != "meeting-1" {
		t.Fatalf("expected meeting-1 completed, got %v", got)
	}
}

func TestEnd_UnknownIsNotFoundNotFatal(t *testing.T) {
	r := NewRegistry(testConfig(), &mockRepository{})
	if err := r.End(context.Background(), "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSweepIdle_EvictsAndRecreatesFresh(t *testing.T) {
	repo := &mockRepository{}
	r := NewRegistry(testConfig(), repo)
	var finalized int
	r.SetFinalizer(func(_ context.Context, _ *Session) { finalized++ })

	s := r.GetOrCreate(context.Background(), "meeting-1", PlatformMeet)
	if _, err := s.Ingest(transcript.Fragment{Text: "stale content here"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if n := r.SweepIdle(context.Background(), time.Hour); n != 0 {
		t.Fatalf("expected no evictions for active session, got %d", n)
	}

	// Zero idle tolerance: everything is stale.
	if n := r.SweepIdle(context.Background(), 0); n != 1 {
		t.Fatalf("expected one eviction, got %d", n)
	}
	if finalized != 1 {
		t.Fatalf("expected final flush before eviction, got %d", finalized)
	}

	fresh := r.GetOrCreate(context.Background(), "meeting-1", PlatformMeet)
	if fresh == s {
		t.Fatal("expected a fresh session after eviction, got the stale one")
	}
	if len(fresh.CumulativeTranscript()) != 0 {
		t.Fatal("expected an empty transcript in the fresh session")
	}
}

func TestStopAll_FlushesEverySession(t *testing.T) {
	repo := &mockRepository{}
	r := NewRegistry(testConfig(), repo)
	var finalized int
	r.SetFinalizer(func(_ context.Context, _ *Session) { finalized++ })

	for i := 0; i < 3; i++ {
		r.GetOrCreate(context.Background(), fmt.Sprintf("meeting-%d", i), PlatformMeet)
	}
	if n := r.StopAll(context.Background()); n != 3 {
		t.Fatalf("expected 3 stopped sessions, got %d", n)
	}
	if finalized != 3 || r.Count() != 0 {
		t.Fatalf("expected all sessions flushed and removed, finalized=%d count=%d", finalized, r.Count())
	}
}

package repository

import (
	"context"
	"time"
)

type CreateMeetingInput struct {
	MeetingID string
	Platform  string
	StartedAt time.Time
}

type CompleteMeetingInput struct {
	MeetingID string
	EndedAt   time.Time
}

type UpsertParticipantInput struct {
	MeetingID     string
	ParticipantID string
	Name          string
	PlatformID    string
	IsHost        bool
	Active        bool
	JoinedAt      time.Time
	LeftAt        *time.Time
}

type InsertSegmentInput struct {
	MeetingID  string
	Content    string
	Speaker    string
	Confidence float64
	Seq        int
	SpokenAt   time.Time
}

type InsertArtifactInput struct {
	ArtifactID string
	MeetingID  string
	Kind       ArtifactKind
	Title      string
	Body       string
	Assignee   string
}

type UpdateDispatchStatusInput struct {
	ArtifactID  string
	Target      string
	State       DispatchState
	ExternalID  string
	ExternalURL string
	Reason      string
	RetryCount  int
}

type MeetingRepository interface {
	CreateMeeting(ctx context.Context, input CreateMeetingInput) (*Meeting, error)
	CompleteMeeting(ctx context.Context, input CompleteMeetingInput) error
	UpsertParticipant(ctx context.Context, input UpsertParticipantInput) error
}

type TranscriptRepository interface {
	InsertSegment(ctx context.Context, input InsertSegmentInput) error
	ListSegmentsByMeetingID(ctx context.Context, meetingID string) ([]TranscriptSegment, error)
}

type ArtifactRepository interface {
	InsertArtifact(ctx context.Context, input InsertArtifactInput) (*Artifact, error)
	UpdateDispatchStatus(ctx context.Context, input UpdateDispatchStatusInput) error
	ListDispatchStatuses(ctx context.Context, artifactID string) ([]DispatchStatus, error)
	// ListArtifactsPendingDispatch returns artifacts no delivery was ever
	// recorded for, oldest first. They are picked up by the reconciler after
	// a restart loses the in-memory pending queue.
	ListArtifactsPendingDispatch(ctx context.Context, limit int) ([]Artifact, error)
}

type Repository interface {
	MeetingRepository
	TranscriptRepository
	ArtifactRepository
}

package repository

import "time"

type MeetingStatus string

const (
	MeetingStatusActive    MeetingStatus = "active"
	MeetingStatusCompleted MeetingStatus = "completed"
)

type Meeting struct {
	ID        string
	Platform  string
	StartedAt time.Time
	EndedAt   *time.Time
	Status    MeetingStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Participant struct {
	MeetingID  string
	ID         string
	Name       string
	PlatformID string
	IsHost     bool
	Active     bool
	JoinedAt   time.Time
	LeftAt     *time.Time
}

type TranscriptSegment struct {
	ID         string
	MeetingID  string
	Content    string
	Speaker    string
	Confidence float64
	Seq        int
	SpokenAt   time.Time
	CreatedAt  time.Time
}

type ArtifactKind string

const (
	ArtifactKindTask    ArtifactKind = "task"
	ArtifactKindSummary ArtifactKind = "summary"
)

type Artifact struct {
	ID        string
	MeetingID string
	Kind      ArtifactKind
	Title     string
	Body      string
	Assignee  string
	CreatedAt time.Time
}

type DispatchState string

const (
	DispatchNotStarted DispatchState = "not_started"
	DispatchInFlight   DispatchState = "in_flight"
	DispatchSucceeded  DispatchState = "succeeded"
	DispatchFailed     DispatchState = "failed"
)

type DispatchStatus struct {
	ArtifactID  string
	Target      string
	State       DispatchState
	ExternalID  string
	ExternalURL string
	Reason      string
	RetryCount  int
	UpdatedAt   time.Time
}

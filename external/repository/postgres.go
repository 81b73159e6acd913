package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/scribelab/scribed/internal/repository"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) repository.Repository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) CreateMeeting(ctx context.Context, input repository.CreateMeetingInput) (*repository.Meeting, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO meetings (id, platform, started_at, status)
		 VALUES ($1, $2, $3, 'active')
		 ON CONFLICT (id) DO UPDATE SET updated_at = NOW()
		 RETURNING id, platform, started_at, ended_at, status`,
		input.MeetingID, input.Platform, input.StartedAt)
	var m repository.Meeting
	var endedAt *time.Time
	if err := row.Scan(&m.ID, &m.Platform, &m.StartedAt, &endedAt, &m.Status); err != nil {
		return nil, err
	}
	m.EndedAt = endedAt
	return &m, nil
}

func (r *PostgresRepository) CompleteMeeting(ctx context.Context, input repository.CompleteMeetingInput) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE meetings SET status = 'completed', ended_at = $2, updated_at = NOW() WHERE id = $1`,
		input.MeetingID, input.EndedAt)
	return err
}

func (r *PostgresRepository) UpsertParticipant(ctx context.Context, input repository.UpsertParticipantInput) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO participants (meeting_id, participant_id, name, platform_id, is_host, active, joined_at, left_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (meeting_id, participant_id) DO UPDATE
		 SET name = EXCLUDED.name,
		     is_host = participants.is_host OR EXCLUDED.is_host,
		     active = EXCLUDED.active,
		     left_at = EXCLUDED.left_at`,
		input.MeetingID, input.ParticipantID, input.Name, input.PlatformID,
		input.IsHost, input.Active, input.JoinedAt, input.LeftAt)
	return err
}

func (r *PostgresRepository) InsertSegment(ctx context.Context, input repository.InsertSegmentInput) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO transcript_segments (meeting_id, content, speaker, confidence, seq, spoken_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (meeting_id, seq) DO NOTHING`,
		input.MeetingID, input.Content, input.Speaker, input.Confidence, input.Seq, input.SpokenAt)
	return err
}

func (r *PostgresRepository) ListSegmentsByMeetingID(ctx context.Context, meetingID string) ([]repository.TranscriptSegment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, meeting_id, content, speaker, confidence, seq, spoken_at, created_at
		 FROM transcript_segments WHERE meeting_id = $1 ORDER BY seq ASC`,
		meetingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []repository.TranscriptSegment
	for rows.Next() {
		var seg repository.TranscriptSegment
		if err := rows.Scan(&seg.ID, &seg.MeetingID, &seg.Content, &seg.Speaker, &seg.Confidence, &seg.Seq, &seg.SpokenAt, &seg.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, seg)
	}
	return list, rows.Err()
}

func (r *PostgresRepository) InsertArtifact(ctx context.Context, input repository.InsertArtifactInput) (*repository.Artifact, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO artifacts (id, meeting_id, kind, title, body, assignee)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, meeting_id, kind, title, body, assignee, created_at`,
		input.ArtifactID, input.MeetingID, input.Kind, input.Title, input.Body, input.Assignee)
	var a repository.Artifact
	if err := row.Scan(&a.ID, &a.MeetingID, &a.Kind, &a.Title, &a.Body, &a.Assignee, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *PostgresRepository) UpdateDispatchStatus(ctx context.Context, input repository.UpdateDispatchStatusInput) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO dispatch_statuses (artifact_id, target, state, external_id, external_url, reason, retry_count, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		 ON CONFLICT (artifact_id, target) DO UPDATE
		 SET state = EXCLUDED.state,
		     external_id = EXCLUDED.external_id,
		     external_url = EXCLUDED.external_url,
		     reason = EXCLUDED.reason,
		     retry_count = EXCLUDED.retry_count,
		     updated_at = NOW()`,
		input.ArtifactID, input.Target, input.State, input.ExternalID, input.ExternalURL, input.Reason, input.RetryCount)
	return err
}

func (r *PostgresRepository) ListArtifactsPendingDispatch(ctx context.Context, limit int) ([]repository.Artifact, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.id, a.meeting_id, a.kind, a.title, a.body, a.assignee, a.created_at
		 FROM artifacts a
		 WHERE NOT EXISTS (
		     SELECT 1 FROM dispatch_statuses s WHERE s.artifact_id = a.id
		 )
		 ORDER BY a.created_at ASC
		 LIMIT $1`,
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []repository.Artifact
	for rows.Next() {
		var a repository.Artifact
		if err := rows.Scan(&a.ID, &a.MeetingID, &a.Kind, &a.Title, &a.Body, &a.Assignee, &a.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

func (r *PostgresRepository) ListDispatchStatuses(ctx context.Context, artifactID string) ([]repository.DispatchStatus, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT artifact_id, target, state, external_id, external_url, reason, retry_count, updated_at
		 FROM dispatch_statuses WHERE artifact_id = $1 ORDER BY target ASC`,
		artifactID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	defer rows.Close()
	var list []repository.DispatchStatus
	for rows.Next() {
		var s repository.DispatchStatus
		if err := rows.Scan(&s.ArtifactID, &s.Target, &s.State, &s.ExternalID, &s.ExternalURL, &s.Reason, &s.RetryCount, &s.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// Package ingest routes inbound protocol events through the pipeline: session
// lookup, participant merge, transcription, fragment buffering, persistence
// and result push-back. It also reacts to batch lifecycle events by turning
// inference results into persisted, dispatched artifacts.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/scribelab/scribed/internal/audio"
	"github.com/scribelab/scribed/internal/batch"
	"github.com/scribelab/scribed/internal/config"
	"github.com/scribelab/scribed/internal/dispatch"
	"github.com/scribelab/scribed/internal/fault"
	"github.com/scribelab/scribed/internal/inference"
	"github.com/scribelab/scribed/internal/metrics"
	"github.com/scribelab/scribed/internal/protocol"
	"github.com/scribelab/scribed/internal/repository"
	"github.com/scribelab/scribed/internal/session"
	"github.com/scribelab/scribed/internal/transcriber"
	"github.com/scribelab/scribed/internal/transcript"
	"github.com/scribelab/scribed/internal/worker"
)

// Notifier pushes outbound frames to the capture client of one meeting. The
// gateway registers one per active connection.
type Notifier interface {
	Notify(t protocol.Type, meetingID string, payload any)
}

type Service struct {
	cfg         *config.Config
	registry    *session.Registry
	scheduler   *batch.Scheduler
	dispatcher  *dispatch.Dispatcher
	transcriber transcriber.Transcriber
	decoder     audio.Decoder
	repo        repository.Repository
	pool        *worker.Pool

	mu        sync.Mutex
	notifiers map[string]Notifier
}

func NewService(
	cfg *config.Config,
	registry *session.Registry,
	scheduler *batch.Scheduler,
	dispatcher *dispatch.Dispatcher,
	tr transcriber.Transcriber,
	decoder audio.Decoder,
	repo repository.Repository,
	pool *worker.Pool,
) *Service {
	svc := &Service{
		cfg:         cfg,
		registry:    registry,
		scheduler:   scheduler,
		dispatcher:  dispatcher,
		transcriber: tr,
		decoder:     decoder,
		repo:        repo,
		pool:        pool,
		notifiers:   make(map[string]Notifier),
	}
	scheduler.SetHooks(svc)
	registry.SetFinalizer(func(ctx context.Context, s *session.Session) {
		scheduler.FinalFlush(ctx, s)
	})
	return svc
}

// Attach binds a notifier to a meeting. A reconnect under the same meeting id
// replaces the previous connection's notifier; session state is unaffected.
func (svc *Service) Attach(meetingID string, n Notifier) {
	svc.mu.Lock()
	svc.notifiers[meetingID] = n
	svc.mu.Unlock()
}

// Detach removes the notifier if it is still the registered one.
func (svc *Service) Detach(meetingID string, n Notifier) {
	svc.mu.Lock()
	if svc.notifiers[meetingID] == n {
		delete(svc.notifiers, meetingID)
	}
	svc.mu.Unlock()
}

func (svc *Service) notify(meetingID string, t protocol.Type, payload any) {
	svc.mu.Lock()
	n := svc.notifiers[meetingID]
	svc.mu.Unlock()
	if n != nil {
		n.Notify(t, meetingID, payload)
	}
}

// HandleEvent routes one normalized inbound envelope. A bad event never
// aborts the session; it is dropped with a log line and processing continues.
func (svc *Service) HandleEvent(ctx context.Context, t protocol.Type, env protocol.Envelope) error {
	const op = "ingest.handle"
	if env.MeetingID == "" {
		metrics.FragmentsRejected.WithLabelValues("missing_meeting_id").Inc()
		return fault.Newf(fault.InputRejected, op, "%s frame missing meeting id", t)
	}

	switch t {
	case protocol.TypeAudioChunk:
		var payload protocol.AudioChunkPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return fault.New(fault.InputRejected, op, err)
		}
		return svc.handleAudioChunk(ctx, env.MeetingID, payload)
	case protocol.TypeMeetingEvent:
		var payload protocol.MeetingEventPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return fault.New(fault.InputRejected, op, err)
		}
		return svc.handleMeetingEvent(ctx, env.MeetingID, payload)
	case protocol.TypeTranscriptFragment:
		var payload protocol.TranscriptFragmentPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return fault.New(fault.InputRejected, op, err)
		}
		s := svc.registry.GetOrCreate(ctx, env.MeetingID, session.PlatformUnknown)
		svc.ingestFragment(ctx, s, transcript.Fragment{
			Text:            payload.Text,
			Confidence:      payload.Confidence,
			SourceTimestamp: payload.SpokenAt,
			SequenceHint:    int64(payload.Seq),
		})
		svc.scheduler.MaybeTrigger(ctx, s, false)
		return nil
	default:
		return fault.Newf(fault.InputRejected, op, "unroutable type %s", t)
	}
}

func (svc *Service) handleAudioChunk(ctx context.Context, meetingID string, payload protocol.AudioChunkPayload) error {
	s := svc.registry.GetOrCreate(ctx, meetingID, session.ParsePlatform(payload.Platform))
	s.Touch()

	if len(payload.Participants) > 0 {
		svc.mergeParticipants(ctx, s, payload.Participants)
	}

	switch {
	case payload.Transcript != nil:
		// Transcription happened upstream; no external call needed.
		svc.ingestFragment(ctx, s, transcript.Fragment{
			Text:            payload.Transcript.Text,
			Confidence:      payload.Transcript.Confidence,
			SourceTimestamp: payload.RecordedAt,
			SequenceHint:    int64(payload.Seq),
		})
	case len(payload.Audio) > 0:
		if err := svc.submitTranscription(s, payload); err != nil {
			metrics.TranscribeCalls.WithLabelValues("rejected").Inc()
			slog.Warn("transcription submit rejected", "error", err, "meeting_id", s.ID)
		}
	default:
		metrics.FragmentsRejected.WithLabelValues("empty_chunk").Inc()
		slog.Debug("audio chunk carried neither audio nor transcript", "meeting_id", s.ID)
	}

	svc.scheduler.MaybeTrigger(ctx, s, false)
	return nil
}

// submitTranscription runs decode+transcribe on the worker pool so a slow
// provider call never delays ingestion for other meetings.
func (svc *Service) submitTranscription(s *session.Session, payload protocol.AudioChunkPayload) error {
	return svc.pool.Submit(func(ctx context.Context) {
		callCtx, cancel := context.WithTimeout(ctx, svc.cfg.ExternalCallTimeout)
		defer cancel()

		pcm, err := svc.decoder.Decode(payload.Audio, payload.Codec, payload.SampleRate)
		if err != nil {
			metrics.TranscribeCalls.WithLabelValues("decode_error").Inc()
			slog.Warn("failed to decode audio chunk", "error", err, "meeting_id", s.ID)
			return
		}

		result, err := svc.transcriber.Transcribe(callCtx, pcm, payload.SampleRate)
		if err != nil {
			metrics.TranscribeCalls.WithLabelValues("failure").Inc()
			slog.Warn("transcription failed, chunk dropped", "error", err, "meeting_id", s.ID)
			return
		}
		if result.Text == "" {
			metrics.TranscribeCalls.WithLabelValues("no_speech").Inc()
			return
		}
		metrics.TranscribeCalls.WithLabelValues("success").Inc()

		svc.ingestFragment(ctx, s, transcript.Fragment{
			Text:            result.Text,
			Confidence:      result.Confidence,
			SourceTimestamp: payload.RecordedAt,
			SequenceHint:    int64(payload.Seq),
		})
		svc.scheduler.MaybeTrigger(ctx, s, false)
	})
}

// ingestFragment feeds one fragment into the session buffer and, when
// accepted, persists it and pushes exactly one TRANSCRIPTION_RESULT.
func (svc *Service) ingestFragment(ctx context.Context, s *session.Session, f transcript.Fragment) {
	seg, err := s.Ingest(f)
	if err != nil {
		reason := string(fault.ClassOf(err))
		metrics.FragmentsRejected.WithLabelValues(reason).Inc()
		slog.Debug("fragment not ingested", "reason", reason, "meeting_id", s.ID)
		return
	}
	metrics.FragmentsIngested.Inc()

	if err := svc.repo.InsertSegment(ctx, repository.InsertSegmentInput{
		MeetingID:  s.ID,
		Content:    seg.Text,
		Speaker:    seg.Speaker,
		Confidence: seg.Confidence,
		Seq:        seg.Seq,
		SpokenAt:   seg.SpokenAt,
	}); err != nil {
		slog.Error("failed to persist segment", "error", err, "meeting_id", s.ID, "seq", seg.Seq)
	}

	svc.notify(s.ID, protocol.TypeTranscriptionResult, protocol.TranscriptionResultPayload{
		Text:       seg.Text,
		Confidence: seg.Confidence,
		Speaker:    seg.Speaker,
		Seq:        seg.Seq,
		SpokenAt:   seg.SpokenAt,
	})
}

func (svc *Service) handleMeetingEvent(ctx context.Context, meetingID string, payload protocol.MeetingEventPayload) error {
	switch payload.Action {
	case protocol.MeetingStart:
		svc.registry.GetOrCreate(ctx, meetingID, session.ParsePlatform(payload.Platform))
		return nil
	case protocol.MeetingEnd:
		if err := svc.registry.End(ctx, meetingID); err != nil && !errors.Is(err, session.ErrNotFound) {
			return err
		}
		return nil
	default:
		return fault.Newf(fault.InputRejected, "ingest.meeting_event", "unknown action %q", payload.Action)
	}
}

func (svc *Service) mergeParticipants(ctx context.Context, s *session.Session, snapshot []protocol.ParticipantSnapshot) {
	changed := false
	for _, p := range snapshot {
		if p.ID == "" {
			continue
		}
		if p.Left {
			if s.MarkLeft(p.ID) {
				changed = true
			}
			continue
		}
		role := session.RoleGuest
		if p.IsHost {
			role = session.RoleHost
		}
		if s.MergeParticipant(session.Participant{
			ID:         p.ID,
			Name:       p.Name,
			PlatformID: p.PlatformID,
			Role:       role,
		}) {
			changed = true
		}
	}
	if !changed {
		return
	}

	for _, p := range s.Participants() {
		if err := svc.repo.UpsertParticipant(ctx, repository.UpsertParticipantInput{
			MeetingID:     s.ID,
			ParticipantID: p.ID,
			Name:          p.Name,
			PlatformID:    p.PlatformID,
			IsHost:        p.Role == session.RoleHost,
			Active:        p.Active,
			JoinedAt:      p.JoinedAt,
			LeftAt:        p.LeftAt,
		}); err != nil {
			slog.Error("failed to persist participant", "error", err, "meeting_id", s.ID, "participant_id", p.ID)
		}
	}

	svc.notify(s.ID, protocol.TypeMeetingUpdate, svc.rosterPayload(s))
}

func (svc *Service) rosterPayload(s *session.Session) protocol.MeetingUpdatePayload {
	participants := s.Participants()
	out := protocol.MeetingUpdatePayload{
		ActiveParticipants: s.ActiveParticipantCount(),
		Participants:       make([]protocol.ParticipantSnapshot, 0, len(participants)),
	}
	for _, p := range participants {
		out.Participants = append(out.Participants, protocol.ParticipantSnapshot{
			ID:         p.ID,
			Name:       p.Name,
			PlatformID: p.PlatformID,
			IsHost:     p.Role == session.RoleHost,
			Left:       !p.Active,
		})
	}
	return out
}

// BatchStarted implements batch.Hooks.
func (svc *Service) BatchStarted(s *session.Session, job batch.Job) {
	svc.notify(s.ID, protocol.TypeProcessingStatus, protocol.ProcessingStatusPayload{
		Stage: protocol.StageBatchStarted,
		JobID: job.ID,
	})
}

// BatchCompleted implements batch.Hooks: inference results become persisted
// artifacts, each handed to the dispatcher, then the client is told whether
// the batch completed cleanly or degraded.
func (svc *Service) BatchCompleted(ctx context.Context, s *session.Session, job batch.Job, result inference.Result) {
	var artifacts []repository.Artifact

	for _, task := range result.Tasks {
		if task.Title == "" {
			continue
		}
		artifacts = append(artifacts, repository.Artifact{
			ID:        uuid.NewString(),
			MeetingID: s.ID,
			Kind:      repository.ArtifactKindTask,
			Title:     task.Title,
			Body:      task.Description,
			Assignee:  task.Assignee,
		})
	}
	if result.Summary != "" {
		artifacts = append(artifacts, repository.Artifact{
			ID:        uuid.NewString(),
			MeetingID: s.ID,
			Kind:      repository.ArtifactKindSummary,
			Title:     "Meeting summary",
			Body:      result.Summary,
		})
	}

	taskCount := 0
	for _, artifact := range artifacts {
		if artifact.Kind == repository.ArtifactKindTask {
			taskCount++
		}
		stored, err := svc.repo.InsertArtifact(ctx, repository.InsertArtifactInput{
			ArtifactID: artifact.ID,
			MeetingID:  artifact.MeetingID,
			Kind:       artifact.Kind,
			Title:      artifact.Title,
			Body:       artifact.Body,
			Assignee:   artifact.Assignee,
		})
		if err != nil {
			slog.Error("failed to persist artifact", "error", err, "meeting_id", s.ID, "kind", artifact.Kind)
			continue
		}
		svc.submitDispatch(*stored)
	}

	status := protocol.ProcessingStatusPayload{
		Stage:     protocol.StageCompleted,
		JobID:     job.ID,
		TaskCount: taskCount,
	}
	if result.Degraded {
		status.Stage = protocol.StageDegraded
		status.Message = result.ErrorMarker
	}
	svc.notify(s.ID, protocol.TypeProcessingStatus, status)
}

// BatchFailed implements batch.Hooks. The transcript content stays buffered;
// the client is only told processing is delayed.
func (svc *Service) BatchFailed(s *session.Session, job batch.Job, err error) {
	slog.Warn("batch failure reported to client", "error", err, "meeting_id", s.ID, "job_id", job.ID)
	svc.notify(s.ID, protocol.TypeProcessingStatus, protocol.ProcessingStatusPayload{
		Stage:   protocol.StageFailed,
		JobID:   job.ID,
		Message: "processing delayed, transcript retained",
	})
}

// submitDispatch runs delivery on the worker pool; backoff sleeps must not
// hold an ingestion path.
func (svc *Service) submitDispatch(artifact repository.Artifact) {
	if err := svc.pool.Submit(func(ctx context.Context) {
		svc.dispatcher.Dispatch(ctx, artifact)
	}); err != nil {
		slog.Warn("dispatch submit rejected", "error", err, "artifact_id", artifact.ID)
	}
}

var _ batch.Hooks = (*Service)(nil)

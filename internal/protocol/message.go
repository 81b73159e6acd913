// Package protocol defines the wire messages exchanged with capture clients
// and the per-connection state machine. Every frame is a JSON envelope with a
// type tag and a meeting id; payload shapes are per-type.
package protocol

import (
	"encoding/json"
	"time"

	"github.com/scribelab/scribed/internal/fault"
)

type Type string

const (
	// Inbound.
	TypeHandshake          Type = "HANDSHAKE"
	TypeAudioChunk         Type = "AUDIO_CHUNK"
	TypeMeetingEvent       Type = "MEETING_EVENT"
	TypeTranscriptFragment Type = "TRANSCRIPT_FRAGMENT"

	// Outbound.
	TypeHandshakeAck        Type = "HANDSHAKE_ACK"
	TypeTranscriptionResult Type = "TRANSCRIPTION_RESULT"
	TypeMeetingUpdate       Type = "MEETING_UPDATE"
	TypeProcessingStatus    Type = "PROCESSING_STATUS"
)

// deprecatedAliases maps tags still emitted by older capture clients onto the
// canonical type. The enhanced chunk variant carries extra fields but is the
// same event; the two older names predate the tag cleanup.
var deprecatedAliases = map[string]Type{
	"AUDIO_CHUNK_ENHANCED": TypeAudioChunk,
	"ENHANCED_AUDIO_CHUNK": TypeAudioChunk,
	"AUDIO_DATA":           TypeAudioChunk,
	"MEETING_CONTROL":      TypeMeetingEvent,
}

// Normalize resolves a raw tag to its canonical type. The second result
// reports whether the tag was a deprecated alias.
func Normalize(raw string) (Type, bool, bool) {
	switch t := Type(raw); t {
	case TypeHandshake, TypeAudioChunk, TypeMeetingEvent, TypeTranscriptFragment:
		return t, false, true
	}
	if t, ok := deprecatedAliases[raw]; ok {
		return t, true, true
	}
	return "", false, false
}

type Envelope struct {
	Type      string          `json:"type"`
	MeetingID string          `json:"meetingId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Decode parses one inbound frame. Malformed frames are InputRejected faults;
// the connection drops the frame and continues.
func Decode(data []byte) (Envelope, error) {
	const op = "protocol.decode"
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fault.New(fault.InputRejected, op, err)
	}
	if env.Type == "" {
		return Envelope{}, fault.Newf(fault.InputRejected, op, "frame missing type tag")
	}
	return env, nil
}

// Encode builds one outbound frame.
func Encode(t Type, meetingID string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: string(t), MeetingID: meetingID, Payload: raw})
}

type HandshakePayload struct {
	ClientVersion string   `json:"clientVersion"`
	Platform      string   `json:"platform"`
	Capabilities  []string `json:"capabilities,omitempty"`
}

type HandshakeAckPayload struct {
	Accepted      bool   `json:"accepted"`
	ServerVersion string `json:"serverVersion"`
	Message       string `json:"message,omitempty"`
}

type ParticipantSnapshot struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PlatformID string `json:"platformId,omitempty"`
	IsHost     bool   `json:"isHost,omitempty"`
	Left       bool   `json:"left,omitempty"`
}

// EmbeddedFragment is a transcript produced upstream and attached to its audio
// chunk, sparing the server a transcription call.
type EmbeddedFragment struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// AudioChunkPayload covers both the legacy chunk (audio plus minimal
// metadata) and the enhanced variant; enhanced-only fields are simply absent
// on legacy frames.
type AudioChunkPayload struct {
	Audio      []byte            `json:"audio,omitempty"`
	Codec      string            `json:"codec,omitempty"`
	SampleRate int               `json:"sampleRate,omitempty"`
	Seq        int               `json:"seq,omitempty"`
	RecordedAt time.Time         `json:"recordedAt,omitempty"`
	Transcript *EmbeddedFragment `json:"transcript,omitempty"`

	// Enhanced variant only.
	Platform     string                `json:"platform,omitempty"`
	ChunkSize    int                   `json:"chunkSize,omitempty"`
	Participants []ParticipantSnapshot `json:"participants,omitempty"`
}

type MeetingAction string

const (
	MeetingStart MeetingAction = "start"
	MeetingEnd   MeetingAction = "end"
)

type MeetingEventPayload struct {
	Action   MeetingAction `json:"action"`
	Platform string        `json:"platform,omitempty"`
}

type TranscriptFragmentPayload struct {
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	Seq        int       `json:"seq,omitempty"`
	SpokenAt   time.Time `json:"spokenAt,omitempty"`
}

type TranscriptionResultPayload struct {
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	Speaker    string    `json:"speaker,omitempty"`
	Seq        int       `json:"seq"`
	SpokenAt   time.Time `json:"spokenAt,omitempty"`
}

type MeetingUpdatePayload struct {
	ActiveParticipants int                   `json:"activeParticipants"`
	Participants       []ParticipantSnapshot `json:"participants"`
}

type ProcessingStage string

const (
	StageBatchStarted ProcessingStage = "batch_started"
	StageCompleted    ProcessingStage = "completed"
	StageDegraded     ProcessingStage = "degraded"
	StageFailed       ProcessingStage = "failed"
)

// ProcessingStatusPayload lets the capture client know when results are ready
// before it disconnects, and distinguishes degraded completion from success.
type ProcessingStatusPayload struct {
	Stage     ProcessingStage `json:"stage"`
	JobID     string          `json:"jobId"`
	TaskCount int             `json:"taskCount,omitempty"`
	Message   string          `json:"message,omitempty"`
}

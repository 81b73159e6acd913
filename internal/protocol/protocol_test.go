package protocol

import (
	"encoding/json"
	"testing"

	"github.com/scribelab/scribed/internal/fault"
)

func TestNormalize_CanonicalTags(t *testing.T) {
	for _, raw := range []string{"HANDSHAKE", "AUDIO_CHUNK", "MEETING_EVENT", "TRANSCRIPT_FRAGMENT"} {
		typ, deprecated, ok := Normalize(raw)
		if !ok || deprecated {
			t.Fatalf("expected %s to be canonical, ok=%v deprecated=%v", raw, ok, deprecated)
		}
		if string(typ) != raw {
			t.Fatalf("expected %s unchanged, got %s", raw, typ)
		}
	}
}

func TestNormalize_DeprecatedAliasesMapToCanonical(t *testing.T) {
	for _, raw := range []string{"AUDIO_CHUNK_ENHANCED", "ENHANCED_AUDIO_CHUNK", "AUDIO_DATA"} {
		typ, deprecated, ok := Normalize(raw)
		if !ok || !deprecated {
			t.Fatalf("expected %s to be a deprecated alias, ok=%v deprecated=%v", raw, ok, deprecated)
		}
		if typ != TypeAudioChunk {
			t.Fatalf("expected %s to normalize to AUDIO_CHUNK, got %s", raw, typ)
		}
	}
}

func TestNormalize_UnknownTagRejected(t *testing.T) {
	if _, _, ok := Normalize("VIDEO_CHUNK"); ok {
		t.Fatal("expected an unknown tag to be rejected")
	}
}

func TestDecode_MalformedFrameIsInputRejected(t *testing.T) {
	for _, data := range []string{"{not json", `{"payload":{}}`} {
		_, err := Decode([]byte(data))
		if err == nil {
			t.Fatalf("expected an error for %q", data)
		}
		if fault.ClassOf(err) != fault.InputRejected {
			t.Fatalf("expected InputRejected, got %s", fault.ClassOf(err))
		}
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	data, err := Encode(TypeTranscriptionResult, "meeting-1", TranscriptionResultPayload{
		Text:       "let's begin",
		Confidence: 0.94,
		Seq:        7,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	env, err := Decode(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.Type != string(TypeTranscriptionResult) || env.MeetingID != "meeting-1" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	var payload TranscriptionResultPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload.Text != "let's begin" || payload.Seq != 7 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestMachine_RejectsTrafficBeforeHandshake(t *testing.T) {
	m := NewMachine()
	if err := m.Admit(TypeAudioChunk); err == nil {
		t.Fatal("expected audio before handshake to be rejected")
	} else if fault.ClassOf(err) != fault.InputRejected {
		t.Fatalf("expected InputRejected, got %s", fault.ClassOf(err))
	}
}

func TestMachine_HandshakeThenActive(t *testing.T) {
	m := NewMachine()
	if err := m.Admit(TypeHandshake); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.State() != StateHandshaking {
		t.Fatalf("expected handshaking, got %s", m.State())
	}
	if err := m.Activate("meeting-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.State() != StateActive || m.MeetingID() != "meeting-1" {
		t.Fatalf("expected active meeting-1, got %s %s", m.State(), m.MeetingID())
	}
	if err := m.Admit(TypeAudioChunk); err != nil {
		t.Fatalf("expected audio admitted when active, got %v", err)
	}
}

func TestMachine_DuplicateHandshakeRejected(t *testing.T) {
	m := NewMachine()
	if err := m.Admit(TypeHandshake); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Activate("meeting-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Admit(TypeHandshake); err == nil {
		t.Fatal("expected a duplicate handshake to be rejected")
	}
}

func TestMachine_ActivateRequiresHandshaking(t *testing.T) {
	m := NewMachine()
	if err := m.Activate("meeting-1"); err == nil {
		t.Fatal("expected activation before handshake to fail")
	}
}

func TestMachine_ClosedAdmitsNothing(t *testing.T) {
	m := NewMachine()
	m.MarkClosed()
	if err := m.Admit(TypeHandshake); err == nil {
		t.Fatal("expected a closed connection to admit nothing")
	} else if fault.ClassOf(err) != fault.StateConflict {
		t.Fatalf("expected StateConflict, got %s", fault.ClassOf(err))
	}
}

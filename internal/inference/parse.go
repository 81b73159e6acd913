package inference

import (
	"encoding/json"
	"strings"
)

type payload struct {
	Summary  string        `json:"summary"`
	Tasks    []TaskDraft   `json:"tasks"`
	Speakers []SpeakerTurn `json:"speakers"`
}

// ParsePayload extracts the structured payload from a raw completion. Models
// routinely wrap the JSON in prose or fences; the first balanced object found
// in the text is used. When nothing parses, a degraded result carrying the raw
// text is returned so diagnostics survive without an exception path.
func ParsePayload(kind Kind, raw string) Result {
	trimmed := strings.TrimSpace(raw)

	var p payload
	if err := json.Unmarshal([]byte(trimmed), &p); err == nil {
		return resultFrom(kind, p)
	}
	if extracted, ok := extractJSONObject(trimmed); ok {
		if err := json.Unmarshal([]byte(extracted), &p); err == nil {
			return resultFrom(kind, p)
		}
	}
	return Result{
		Kind:        kind,
		Degraded:    true,
		ErrorMarker: "unparseable inference response",
		RawResponse: raw,
	}
}

func resultFrom(kind Kind, p payload) Result {
	return Result{
		Kind:     kind,
		Summary:  strings.TrimSpace(p.Summary),
		Tasks:    p.Tasks,
		Speakers: p.Speakers,
	}
}

// extractJSONObject returns the first balanced top-level JSON object in s.
// Brace counting ignores braces inside string literals.
func extractJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

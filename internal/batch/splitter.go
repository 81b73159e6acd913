package batch

import (
	"strings"

	"github.com/scribelab/scribed/internal/transcript"
)

// SplitSlices cuts text into ordered slices, each within tokenBudget, breaking
// on sentence and line boundaries rather than arbitrary character positions.
// Consecutive slices share a small overlap window so context spanning a
// boundary is not lost to the inference call.
func SplitSlices(text string, tokenBudget, overlapTokens int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if transcript.EstimateTokens(text) <= tokenBudget {
		return []string{text}
	}

	sentences := splitSentences(text)
	var slices []string
	var current []string
	currentTokens := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		slices = append(slices, strings.TrimSpace(strings.Join(current, " ")))
		// Seed the next slice with the tail of this one.
		tail, tailTokens := overlapTail(current, overlapTokens)
		current = tail
		currentTokens = tailTokens
	}

	for _, sentence := range sentences {
		tokens := transcript.EstimateTokens(sentence)
		if tokens > tokenBudget {
			// A single sentence over budget cannot break naturally; hard-cut it.
			flush()
			for _, piece := range hardCut(sentence, tokenBudget) {
				current = []string{piece}
				currentTokens = transcript.EstimateTokens(piece)
				flush()
			}
			continue
		}
		if currentTokens+tokens > tokenBudget {
			flush()
		}
		current = append(current, sentence)
		currentTokens += tokens
	}
	if len(current) > 0 {
		slices = append(slices, strings.TrimSpace(strings.Join(current, " ")))
	}
	return slices
}

// splitSentences breaks text after sentence punctuation or newlines, keeping
// the delimiter with the preceding sentence. Speaker turns arrive one per
// line, so newlines double as turn boundaries.
func splitSentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '.', '!', '?', '\n':
			end := i + 1
			piece := strings.TrimSpace(text[start:end])
			if piece != "" {
				out = append(out, piece)
			}
			start = end
		}
	}
	if piece := strings.TrimSpace(text[start:]); piece != "" {
		out = append(out, piece)
	}
	return out
}

func overlapTail(sentences []string, overlapTokens int) ([]string, int) {
	if overlapTokens <= 0 {
		return nil, 0
	}
	var tail []string
	total := 0
	for i := len(sentences) - 1; i >= 0; i-- {
		tokens := transcript.EstimateTokens(sentences[i])
		if total+tokens > overlapTokens {
			break
		}
		tail = append([]string{sentences[i]}, tail...)
		total += tokens
	}
	return tail, total
}

func hardCut(sentence string, tokenBudget int) []string {
	maxChars := tokenBudget * 4
	var out []string
	for len(sentence) > maxChars {
		cut := maxChars
		// Prefer the last word boundary before the cut point.
		if idx := strings.LastIndexByte(sentence[:cut], ' '); idx > 0 {
			cut = idx
		}
		out = append(out, strings.TrimSpace(sentence[:cut]))
		sentence = strings.TrimSpace(sentence[cut:])
	}
	if sentence != "" {
		out = append(out, sentence)
	}
	return out
}

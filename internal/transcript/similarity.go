package transcript

import "strings"

// Similarity returns a token-overlap ratio in [0, 1] between two normalized
// texts. Identical texts score 1. A short text fully contained in a longer one
// scores by containment, which catches the common live-transcription case of a
// window re-emitting a previous utterance with a few words appended.
func Similarity(a, b string) float64 {
	if a == b {
		if a == "" {
			return 0
		}
		return 1
	}
	ta := strings.Fields(a)
	tb := strings.Fields(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	counts := make(map[string]int, len(ta))
	for _, tok := range ta {
		counts[tok]++
	}
	overlap := 0
	for _, tok := range tb {
		if counts[tok] > 0 {
			counts[tok]--
			overlap++
		}
	}

	// Dice coefficient over token multisets.
	dice := 2 * float64(overlap) / float64(len(ta)+len(tb))

	// Containment ratio: overlap relative to the shorter side.
	shorter := len(ta)
	if len(tb) < shorter {
		shorter = len(tb)
	}
	containment := float64(overlap) / float64(shorter)

	if containment > dice {
		return containment
	}
	return dice
}

package bp

import (
	"regexp"
	"strconv"
)

// Marker patterns for dictated readings, e.g. "高压120，低压80".
// 高压 = systolic (high pressure), 低压 = diastolic (low pressure).
var (
	systolicPattern  = regexp.MustCompile(`高压\s*(\d+)`)
	diastolicPattern = regexp.MustCompile(`低压\s*(\d+)`)
)

// ParseTranscript extracts a blood-pressure pair from a free-form voice
// transcript. Each marker is searched independently, so the two values may
// appear in either order; if a marker occurs more than once the first match
// wins. Returns ok=false when either value is missing — that is the normal
// outcome for unrecognized speech, not an error. Extracted values are not
// range-checked; the caller classifies them as-is.
func ParseTranscript(transcript string) (systolic, diastolic int, ok bool) {
	sm := systolicPattern.FindStringSubmatch(transcript)  // First systolic marker match
	dm := diastolicPattern.FindStringSubmatch(transcript) // First diastolic marker match
	if sm == nil || dm == nil {
		return 0, 0, false // Both values are required
	}
	systolic, err := strconv.Atoi(sm[1])
	if err != nil {
		return 0, 0, false // Digit run too large to represent
	}
	diastolic, err = strconv.Atoi(dm[1])
	if err != nil {
		return 0, 0, false
	}
	return systolic, diastolic, true
}

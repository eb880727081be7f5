// Package bp holds the blood-pressure core logic: classifying a reading
// against the clinical thresholds and extracting a reading from a voice
// transcript.
package bp

import "github.com/tenghuan/EaseBPMate/internal/domain"

// Classify reports whether a blood-pressure pair is abnormal. A reading is
// abnormal when the systolic value is outside [90, 140] or the diastolic
// value is outside [60, 90]; values exactly on a bound are normal. Inputs
// are not validated — physiologically impossible values are classified like
// any other.
func Classify(systolic, diastolic int) bool {
	return systolic > domain.SystolicMax ||
		systolic < domain.SystolicMin ||
		diastolic > domain.DiastolicMax ||
		diastolic < domain.DiastolicMin
}

package enums

import "fmt"

// SubmissionState names the stages of a checkout order submission.
type SubmissionState string

const (
	SubmissionIdle           SubmissionState = "idle"
	SubmissionValidating     SubmissionState = "validating"
	SubmissionPricing        SubmissionState = "pricing"
	SubmissionSubmitting     SubmissionState = "submitting"
	SubmissionRetryScheduled SubmissionState = "retry_scheduled"
	SubmissionCommitted      SubmissionState = "committed"
	SubmissionFailed         SubmissionState = "failed"
	SubmissionFinalizing     SubmissionState = "finalizing"
	SubmissionDone           SubmissionState = "done"
)

var validSubmissionStates = []SubmissionState{
	SubmissionIdle,
	SubmissionValidating,
	SubmissionPricing,
	SubmissionSubmitting,
	SubmissionRetryScheduled,
	SubmissionCommitted,
	SubmissionFailed,
	SubmissionFinalizing,
	SubmissionDone,
}

// String implements fmt.Stringer.
func (s SubmissionState) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SubmissionState.
func (s SubmissionState) IsValid() bool {
	for _, candidate := range validSubmissionStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSubmissionState converts raw input into a SubmissionState.
func ParseSubmissionState(value string) (SubmissionState, error) {
	for _, candidate := range validSubmissionStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid submission state %q", value)
}

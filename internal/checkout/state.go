package checkout

import (
	"errors"
	"fmt"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

var ErrIllegalTransition = errors.New("illegal submission state transition")

// transitions lists, for every state, the states it may move to.
var transitions = map[enums.SubmissionState][]enums.SubmissionState{
	enums.SubmissionIdle:           {enums.SubmissionValidating},
	enums.SubmissionValidating:     {enums.SubmissionIdle, enums.SubmissionPricing},
	enums.SubmissionPricing:        {enums.SubmissionIdle, enums.SubmissionSubmitting},
	enums.SubmissionSubmitting:     {enums.SubmissionCommitted, enums.SubmissionRetryScheduled, enums.SubmissionFailed},
	enums.SubmissionRetryScheduled: {enums.SubmissionSubmitting},
	enums.SubmissionCommitted:      {enums.SubmissionFinalizing},
	enums.SubmissionFinalizing:     {enums.SubmissionDone},
	enums.SubmissionFailed:         {enums.SubmissionIdle},
	enums.SubmissionDone:           {enums.SubmissionIdle},
}

// CanTransition reports whether from -> to is an allowed move.
func CanTransition(from, to enums.SubmissionState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// machine tracks one submission. attempts counts order creation calls; the
// retry edge is only taken once.
type machine struct {
	state    enums.SubmissionState
	attempts int
	history  []enums.SubmissionState
	onChange func(from, to enums.SubmissionState)
}

func newMachine(start enums.SubmissionState) *machine {
	if !start.IsValid() {
		start = enums.SubmissionIdle
	}
	return &machine{state: start, history: []enums.SubmissionState{start}}
}

func (m *machine) State() enums.SubmissionState {
	return m.state
}

func (m *machine) to(next enums.SubmissionState) error {
	if !CanTransition(m.state, next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, m.state, next)
	}
	if next == enums.SubmissionSubmitting {
		if m.attempts >= maxAttempts {
			return fmt.Errorf("%w: attempts exhausted", ErrIllegalTransition)
		}
		m.attempts++
	}
	if next == enums.SubmissionRetryScheduled && m.attempts >= maxAttempts {
		return fmt.Errorf("%w: retry already used", ErrIllegalTransition)
	}
	prev := m.state
	m.state = next
	m.history = append(m.history, next)
	if m.onChange != nil {
		m.onChange(prev, next)
	}
	return nil
}


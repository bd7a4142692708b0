// Package flow models the registration form as a small state machine over
// the persisted profile fields. The stored form_step plus is_submitted are
// the only inputs; transient UI state never feeds back into it.
package flow

import "errors"

// State names the step the form flow is in.
type State string

const (
	StateStep1     State = "step1"
	StateStep2     State = "step2"
	StateReview    State = "review"
	StateSubmitted State = "submitted" // terminal, read-only
)

var (
	// ErrSubmitted rejects edits to a finalized profile.
	ErrSubmitted = errors.New("profile already submitted")
	// ErrStepOrder rejects a step-2 save before step 1 was completed.
	ErrStepOrder = errors.New("step 1 must be saved first")
	// ErrNotReady rejects submission before step 2 was completed.
	ErrNotReady = errors.New("form incomplete; complete step 2 before submitting")
	// ErrNotConfirmed rejects submission without the irreversible-action acknowledgment.
	ErrNotConfirmed = errors.New("submission requires explicit confirmation")
)

// Derive maps the persisted progress markers to the state the flow resumes
// into. A re-opened form lands back on step 1 with its saved values loaded
// until step 2 has been saved; StateStep2 is reached within a session by
// completing step 1 (or navigating back from review before submission).
func Derive(formStep int, submitted bool) State {
	switch {
	case submitted:
		return StateSubmitted
	case formStep >= 2:
		return StateReview
	default:
		return StateStep1
	}
}

// CanEditStep1 guards the Step1 -> Step2 transition.
func CanEditStep1(submitted bool) error {
	if submitted {
		return ErrSubmitted
	}
	return nil
}

// CanEditStep2 guards the Step2 -> Review transition: step 1 must have been
// persisted and the profile must still be open.
func CanEditStep2(formStep int, submitted bool) error {
	if submitted {
		return ErrSubmitted
	}
	if formStep < 1 {
		return ErrStepOrder
	}
	return nil
}

// CanSubmit guards the Review -> Submitted transition. confirmed carries the
// user's irreversible-action acknowledgment.
func CanSubmit(formStep int, submitted, confirmed bool) error {
	if submitted {
		return ErrSubmitted
	}
	if formStep < 2 {
		return ErrNotReady
	}
	if !confirmed {
		return ErrNotConfirmed
	}
	return nil
}

// NextStep returns the monotonic form_step after saving the given step:
// progress never regresses, so re-saving step 1 after step 2 keeps 2.
func NextStep(current, saved int) int {
	if saved > current {
		return saved
	}
	return current
}

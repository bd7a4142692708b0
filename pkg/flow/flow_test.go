package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerive(t *testing.T) {
	cases := []struct {
		name      string
		formStep  int
		submitted bool
		want      State
	}{
		{"fresh profile", 0, false, StateStep1},
		{"step1 saved resumes into step1 with values loaded", 1, false, StateStep1},
		{"step2 saved lands on review", 2, false, StateReview},
		{"submitted is terminal", 2, true, StateSubmitted},
		{"submitted wins over any step value", 0, true, StateSubmitted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Derive(tc.formStep, tc.submitted))
		})
	}
}

func TestStepGuards(t *testing.T) {
	require.NoError(t, CanEditStep1(false))
	assert.ErrorIs(t, CanEditStep1(true), ErrSubmitted)

	assert.ErrorIs(t, CanEditStep2(0, false), ErrStepOrder)
	require.NoError(t, CanEditStep2(1, false))
	require.NoError(t, CanEditStep2(2, false), "backward navigation then re-save is allowed pre-submission")
	assert.ErrorIs(t, CanEditStep2(2, true), ErrSubmitted)
}

func TestCanSubmit(t *testing.T) {
	assert.ErrorIs(t, CanSubmit(1, false, true), ErrNotReady)
	assert.ErrorIs(t, CanSubmit(2, false, false), ErrNotConfirmed)
	assert.ErrorIs(t, CanSubmit(2, true, true), ErrSubmitted)
	assert.NoError(t, CanSubmit(2, false, true))
}

func TestNextStepIsMonotonic(t *testing.T) {
	assert.Equal(t, 1, NextStep(0, 1))
	assert.Equal(t, 2, NextStep(1, 2))
	// re-saving step 1 after step 2 must not regress progress
	assert.Equal(t, 2, NextStep(2, 1))
	assert.Equal(t, 1, NextStep(1, 1))
}

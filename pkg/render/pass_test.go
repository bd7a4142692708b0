package render

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regportal/models"
)

func submittedProfile() models.Profile {
	id := "AB12CD"
	return models.Profile{
		UserID:               1,
		Email:                "a@x.com",
		Name:                 "Asha Rao",
		Contact:              "9876543210",
		Gender:               "female",
		DateOfBirth:          "2000-01-01",
		Age:                  24,
		District:             "Pune",
		Category:             "OBC",
		HighestQualification: "B.Sc.",
		PassID:               &id,
		FormStep:             models.StepTwo,
		IsSubmitted:          true,
		UpdatedAt:            time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestPassRendersPDF(t *testing.T) {
	out, err := Pass(submittedProfile(), "")
	require.NoError(t, err)
	require.NotEmpty(t, out)
	assert.Equal(t, "%PDF", string(out[:4]))
}

func TestPassRefusesUnsubmitted(t *testing.T) {
	p := submittedProfile()
	p.IsSubmitted = false
	_, err := Pass(p, "")
	assert.ErrorIs(t, err, ErrNotSubmitted)

	p = submittedProfile()
	p.PassID = nil
	_, err = Pass(p, "")
	assert.ErrorIs(t, err, ErrNotSubmitted, "submitted flag without a pass id must never render")
}

func TestPassIgnoresMissingPhoto(t *testing.T) {
	out, err := Pass(submittedProfile(), "/nonexistent/photo.jpg")
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}

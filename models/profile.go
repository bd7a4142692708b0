package models

import "time"

// Form progress markers persisted in Profile.FormStep. The stored value is
// the authority for which step the flow resumes into; it only ever increases.
const (
	StepNone = 0 // nothing saved yet
	StepOne  = 1 // step-1 fields saved
	StepTwo  = 2 // step-2 fields saved, ready for review
)

// Genders accepted by the registration form.
var Genders = []string{"male", "female", "other"}

// Categories accepted by the registration form (reservation categories).
var Categories = []string{"Open", "OBC", "SC", "ST", "VJNT", "SEBC", "SBC"}

// Profile is the per-user registration record (one-to-one with User). It is
// created empty on first authentication and becomes read-only through the
// form flow once IsSubmitted is set.
type Profile struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	UserID    uint      `gorm:"uniqueIndex;not null" json:"user_id"` // one-to-one relation
	User      User      `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`

	// Step-1 fields
	Email       string `gorm:"size:255" json:"email"`
	Name        string `gorm:"size:255" json:"name"`
	Contact     string `gorm:"size:64" json:"contact"`
	Gender      string `gorm:"size:16" json:"gender"`
	DateOfBirth string `gorm:"size:10" json:"date_of_birth"` // YYYY-MM-DD

	// Step-2 fields
	Age                  int    `json:"age"`
	District             string `gorm:"size:128" json:"district"`
	Category             string `gorm:"size:16" json:"category"`
	HighestQualification string `gorm:"size:255" json:"highest_qualification"`
	PhotoReference       string `gorm:"size:512" json:"photo_reference"` // store path of the uploaded photo, optional

	// PassID stays nil until final submission, then is unique and immutable.
	// Postgres treats NULLs as distinct so the unique index only bites once
	// a value is assigned.
	PassID      *string `gorm:"size:6;uniqueIndex" json:"pass_id"`
	FormStep    int     `gorm:"not null;default:0" json:"form_step"`
	IsSubmitted bool    `gorm:"not null;default:false" json:"is_submitted"`

	// Uploads is a one-to-many relation from Profile to Upload (photo history)
	Uploads []Upload `gorm:"foreignKey:ProfileID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
}

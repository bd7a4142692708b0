package main

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"regportal/models"
	"regportal/pkg/flow"
	"regportal/pkg/passid"
	"regportal/pkg/policy"
)

// Caller identifies the authenticated principal for policy evaluation. Role
// is resolved from the caller's own user row on every request, never from a
// cached token claim.
type Caller struct {
	UserID   uint
	Username string
	Role     string
}

// Store-level error kinds, mapped onto HTTP statuses in handlers.go.
var (
	ErrNotFound  = errors.New("profile not found")
	ErrForbidden = errors.New("access denied")
	ErrConflict  = errors.New("conflicting write")
)

// profileStore is the single gateway to profile rows. Every method evaluates
// the access policy before touching the database, so authorization cannot be
// forgotten at a call site. All writes are per-step whole-field updates: a
// failed save leaves the prior persisted state intact.
type profileStore struct {
	db *gorm.DB
}

func (s profileStore) fetch(ownerID uint) (*models.Profile, error) {
	var p models.Profile
	if err := s.db.Where("user_id = ?", ownerID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// Get returns the profile owned by ownerID, policy permitting.
func (s profileStore) Get(caller Caller, ownerID uint) (*models.Profile, error) {
	if !policy.CanRead(caller.UserID, caller.Role, ownerID) {
		return nil, ErrForbidden
	}
	return s.fetch(ownerID)
}

// GetByID returns a profile by primary key (admin detail view).
func (s profileStore) GetByID(caller Caller, profileID uint) (*models.Profile, error) {
	var p models.Profile
	if err := s.db.First(&p, profileID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !policy.CanRead(caller.UserID, caller.Role, p.UserID) {
		return nil, ErrForbidden
	}
	return &p, nil
}

// SaveStep1 validates and persists the step-1 fields and advances form_step
// to 1. Validation failure persists nothing; the flow stays on step 1.
func (s profileStore) SaveStep1(caller Caller, ownerID uint, in flow.Step1Input) (*models.Profile, error) {
	if !policy.CanWrite(caller.UserID, caller.Role, ownerID) {
		return nil, ErrForbidden
	}
	p, err := s.fetch(ownerID)
	if err != nil {
		return nil, err
	}
	if err := flow.CanEditStep1(p.IsSubmitted); err != nil {
		return nil, err
	}
	if ferr := flow.ValidateStep1(in); ferr != nil {
		return nil, ferr
	}
	updates := map[string]any{
		"email":         in.Email,
		"name":          in.Name,
		"contact":       in.Contact,
		"gender":        in.Gender,
		"date_of_birth": in.DateOfBirth,
		"form_step":     flow.NextStep(p.FormStep, models.StepOne),
	}
	// the is_submitted guard catches a submission racing this save
	tx := s.db.Model(&models.Profile{}).
		Where("user_id = ? AND is_submitted = false", ownerID).
		Updates(updates)
	if tx.Error != nil {
		return nil, fmt.Errorf("save step 1: %w", tx.Error)
	}
	if tx.RowsAffected == 0 {
		return nil, flow.ErrSubmitted
	}
	return s.fetch(ownerID)
}

// SaveStep2 validates and persists the step-2 fields and advances form_step
// to 2. Rejected until step 1 has been saved.
func (s profileStore) SaveStep2(caller Caller, ownerID uint, in flow.Step2Input) (*models.Profile, error) {
	if !policy.CanWrite(caller.UserID, caller.Role, ownerID) {
		return nil, ErrForbidden
	}
	p, err := s.fetch(ownerID)
	if err != nil {
		return nil, err
	}
	if err := flow.CanEditStep2(p.FormStep, p.IsSubmitted); err != nil {
		return nil, err
	}
	if ferr := flow.ValidateStep2(in); ferr != nil {
		return nil, ferr
	}
	updates := map[string]any{
		"age":                   in.Age,
		"district":              in.District,
		"category":              in.Category,
		"highest_qualification": in.HighestQualification,
		"form_step":             flow.NextStep(p.FormStep, models.StepTwo),
	}
	if in.PhotoReference != "" {
		updates["photo_reference"] = in.PhotoReference
	}
	tx := s.db.Model(&models.Profile{}).
		Where("user_id = ? AND is_submitted = false", ownerID).
		Updates(updates)
	if tx.Error != nil {
		return nil, fmt.Errorf("save step 2: %w", tx.Error)
	}
	if tx.RowsAffected == 0 {
		return nil, flow.ErrSubmitted
	}
	return s.fetch(ownerID)
}

// SetPhoto records the stored photo reference on an open profile.
func (s profileStore) SetPhoto(caller Caller, ownerID uint, ref string) (*models.Profile, error) {
	if !policy.CanWrite(caller.UserID, caller.Role, ownerID) {
		return nil, ErrForbidden
	}
	p, err := s.fetch(ownerID)
	if err != nil {
		return nil, err
	}
	if p.IsSubmitted {
		return nil, flow.ErrSubmitted
	}
	tx := s.db.Model(&models.Profile{}).
		Where("user_id = ? AND is_submitted = false", ownerID).
		Update("photo_reference", ref)
	if tx.Error != nil {
		return nil, fmt.Errorf("set photo: %w", tx.Error)
	}
	if tx.RowsAffected == 0 {
		return nil, flow.ErrSubmitted
	}
	return s.fetch(ownerID)
}

// Submit finalizes the profile: issues the pass id and marks the record
// submitted. Each issuance attempt is a single guarded UPDATE so pass_id and
// is_submitted commit together or not at all; the unique index on pass_id
// arbitrates concurrent submissions that drew the same candidate, and a
// losing attempt retries with a fresh one. A retry after a failed update
// does not re-validate form fields.
func (s profileStore) Submit(caller Caller, ownerID uint, confirmed bool) (*models.Profile, error) {
	if !policy.CanWrite(caller.UserID, caller.Role, ownerID) {
		return nil, ErrForbidden
	}
	p, err := s.fetch(ownerID)
	if err != nil {
		return nil, err
	}
	if err := flow.CanSubmit(p.FormStep, p.IsSubmitted, confirmed); err != nil {
		return nil, err
	}
	_, err = passid.Issue(func(candidate string) error {
		tx := s.db.Model(&models.Profile{}).
			Where("user_id = ? AND form_step >= ? AND is_submitted = false", ownerID, models.StepTwo).
			Updates(map[string]any{"pass_id": candidate, "is_submitted": true})
		if tx.Error != nil {
			if isUniqueConstraintError(tx.Error) {
				return fmt.Errorf("pass id %s taken: %w", candidate, passid.ErrCollision)
			}
			return tx.Error
		}
		if tx.RowsAffected == 0 {
			// another session finished first, or progress was lost
			return flow.ErrSubmitted
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, flow.ErrSubmitted) {
			return nil, flow.ErrSubmitted
		}
		return nil, fmt.Errorf("issue pass id: %w", err)
	}
	return s.fetch(ownerID)
}

// ListAll returns recent profiles for the admin browse surface.
func (s profileStore) ListAll(caller Caller, limit int) ([]models.Profile, error) {
	if !policy.CanReadAll(caller.UserID, caller.Role) {
		return nil, ErrForbidden
	}
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	var items []models.Profile
	if err := s.db.Order("id desc").Limit(limit).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return items, nil
}

// ListSubmitted returns all finalized profiles for the admin export.
func (s profileStore) ListSubmitted(caller Caller) ([]models.Profile, error) {
	if !policy.CanReadAll(caller.UserID, caller.Role) {
		return nil, ErrForbidden
	}
	var items []models.Profile
	if err := s.db.Where("is_submitted = true").Order("id").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list submitted: %w", err)
	}
	return items, nil
}

// latestUpload returns the newest photo upload for a profile, if any.
func (s profileStore) latestUpload(profileID uint) (*models.Upload, bool) {
	var up models.Upload
	if err := s.db.Where("profile_id = ?", profileID).Order("id desc").First(&up).Error; err != nil {
		return nil, false
	}
	return &up, true
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "duplicate key") || strings.Contains(s, "unique constraint") || strings.Contains(s, "already exists")
}

package main

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"regportal/models"
)

// RegisterUser creates an identity-provider account with the default user role.
func RegisterUser(username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("username required")
	}
	if len(password) < 6 { // basic password policy
		return fmt.Errorf("password too short (min 6)")
	}
	// pre-check existing (optimistic)
	var existing models.User
	if err := db.Where("username = ?", username).First(&existing).Error; err == nil {
		return fmt.Errorf("user already exists: %w", ErrConflict)
	}
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	// ensure role exists (idempotent)
	var role models.Role
	if err := db.Where("name = ?", models.RoleUser).First(&role).Error; err != nil {
		role = models.Role{Name: models.RoleUser, Description: "regular user"}
		if err2 := db.Where("name = ?", role.Name).FirstOrCreate(&role).Error; err2 != nil {
			return fmt.Errorf("failed to ensure user role: %v", err2)
		}
	}
	rid := role.ID
	user := models.User{Username: username, HashedPassword: hashedPassword, RoleID: &rid}
	if err := db.Create(&user).Error; err != nil {
		if isUniqueConstraintError(err) { // race condition after initial check
			return fmt.Errorf("user already exists: %w", ErrConflict)
		}
		return err
	}
	return nil
}

// Authenticate checks the credentials and returns the account.
func Authenticate(username, password string) (models.User, error) {
	username = strings.TrimSpace(username)
	var user models.User
	if err := db.Where("username = ?", username).First(&user).Error; err != nil {
		return models.User{}, fmt.Errorf("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword(user.HashedPassword, []byte(password)); err != nil {
		return models.User{}, fmt.Errorf("invalid credentials")
	}
	return user, nil
}

// ensureProfile is the post-authentication hook: the first successful login
// for a user with no profile row creates the empty registration record
// (form_step 0, not submitted). Safe under concurrent first logins.
func ensureProfile(userID uint) (*models.Profile, error) {
	var p models.Profile
	if err := db.Where("user_id = ?", userID).First(&p).Error; err == nil {
		return &p, nil
	}
	p = models.Profile{UserID: userID, FormStep: models.StepNone}
	if err := db.Create(&p).Error; err != nil {
		if isUniqueConstraintError(err) {
			if err2 := db.Where("user_id = ?", userID).First(&p).Error; err2 == nil {
				return &p, nil
			}
		}
		return nil, err
	}
	return &p, nil
}

// roleName resolves the account's role from the database. Called on every
// authenticated request so a demoted admin loses access immediately.
func roleName(u *models.User) string {
	if u.RoleID == nil {
		return models.RoleUser
	}
	var r models.Role
	if err := db.First(&r, *u.RoleID).Error; err != nil {
		return models.RoleUser
	}
	return r.Name
}

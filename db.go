package main

import (
	"log"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"regportal/models"
)

var db *gorm.DB

// store is the policy-enforcing gateway every handler goes through.
var store profileStore

func initDB() {
	var err error
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		log.Fatal("DB_DSN is not set. This project requires a Postgres DSN in DB_DSN.")
	}
	db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect postgres database:", err)
	}
	store = profileStore{db: db}

	// Control schema migrations with env DB_AUTO_MIGRATE (default true). Any permission errors will be logged and ignored.
	shouldMigrate := true
	if v := os.Getenv("DB_AUTO_MIGRATE"); v != "" {
		lv := strings.ToLower(v)
		if lv == "false" || lv == "0" || lv == "no" {
			shouldMigrate = false
		}
	}
	// Ensure the roles master table exists first and seed it so users FK can be applied safely.
	if shouldMigrate {
		if err := db.AutoMigrate(&models.Role{}); err != nil {
			log.Printf("migration warning (roles): %v", err)
		}
	}
	seedRoles()

	// Now migrate the rest (users will get FK to roles)
	if shouldMigrate {
		// Migrate models individually so a failure on one doesn't block others
		if err := db.AutoMigrate(&models.User{}); err != nil {
			log.Printf("migration warning (users): %v", err)
		}
		if err := db.AutoMigrate(&models.Profile{}); err != nil {
			log.Printf("migration warning (profiles): %v", err)
		}
		if err := db.AutoMigrate(&models.Upload{}); err != nil {
			log.Printf("migration warning (uploads): %v", err)
		}
		if err := db.AutoMigrate(&models.RefreshToken{}); err != nil {
			log.Printf("migration warning (refresh_tokens): %v", err)
		}
		if err := ensurePassIDUnique(); err != nil {
			log.Printf("warning: ensuring profiles.pass_id uniqueness failed: %v", err)
		}
	}
	seedDB()
}

// ensurePassIDUnique adds the partial unique index on pass_id if the table
// predates it. Issuance correctness depends on this constraint: two
// submissions committing the same candidate must not both succeed.
func ensurePassIDUnique() error {
	return db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_profiles_pass_id
		ON profiles(pass_id) WHERE pass_id IS NOT NULL`).Error
}

func seedRoles() {
	roles := []models.Role{
		{Name: models.RoleAdmin, Description: "full read access"},
		{Name: models.RoleUser, Description: "regular user"},
	}
	for _, r := range roles {
		var cnt int64
		db.Model(&models.Role{}).Where("name = ?", r.Name).Count(&cnt)
		if cnt == 0 {
			db.Create(&r)
		}
	}
}

func seedDB() {
	seedRoles()

	// Check if admin user exists
	var count int64
	db.Model(&models.User{}).Where("username = ?", "admin").Count(&count)
	if count == 0 {
		var role models.Role
		if err := db.Where("name = ?", models.RoleAdmin).First(&role).Error; err != nil {
			log.Printf("failed to find admin role: %v", err)
		}
		rid := role.ID
		admin := models.User{
			Username: "admin",
			RoleID:   &rid,
		}
		hashedPassword, _ := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.DefaultCost)
		admin.HashedPassword = hashedPassword
		db.Create(&admin)
		log.Println("Seeded admin user: username=admin, password=admin123")
	}
	// Ensure admin has a registration profile row like everyone else
	var admin models.User
	if err := db.Where("username = ?", "admin").First(&admin).Error; err != nil {
		log.Printf("failed to find admin user after seeding: %v", err)
		return
	}
	if _, err := ensureProfile(admin.ID); err != nil {
		log.Printf("failed to create profile for admin: %v", err)
	}
	ensureUploadBase()
}

// ensureUploadBase creates the photo storage directory.
func ensureUploadBase() {
	if err := os.MkdirAll(photoDir(), 0755); err != nil {
		log.Printf("failed to create photo dir %s: %v", photoDir(), err)
	}
}

// uploadBaseDir returns the base directory for stored files (configurable via UPLOAD_BASE env)
func uploadBaseDir() string {
	if v := os.Getenv("UPLOAD_BASE"); v != "" {
		return v
	}
	return "uploads"
}

// photoDir is the single bucket photos land in, keyed per upload.
func photoDir() string {
	return uploadBaseDir() + "/photos"
}

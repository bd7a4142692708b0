// Promote (or demote) a user's role. The form flow and the profile store
// refuse role writes, so this script is the only path to the admin role.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"regportal/models"
)

func main() {
	username := flag.String("username", "", "username to change")
	role := flag.String("role", models.RoleAdmin, "target role (admin or user)")
	flag.Parse()
	if *username == "" {
		log.Fatal("--username is required")
	}
	if *role != models.RoleAdmin && *role != models.RoleUser {
		log.Fatalf("unknown role %q", *role)
	}
	_ = godotenv.Load()
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		log.Fatal("DB_DSN not set in env")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	var user models.User
	if err := db.Where("username = ?", *username).First(&user).Error; err != nil {
		log.Fatalf("user not found: %v", err)
	}
	var r models.Role
	if err := db.Where("name = ?", *role).First(&r).Error; err != nil {
		log.Fatalf("role %q not seeded: %v", *role, err)
	}
	if err := db.Model(&user).Update("role_id", r.ID).Error; err != nil {
		log.Fatalf("update failed: %v", err)
	}
	fmt.Printf("user %s is now %s\n", user.Username, r.Name)
}

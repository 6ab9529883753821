package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"bookbazaar/internal/util"
	"bookbazaar/pkg/auth"
	"bookbazaar/pkg/domain"
	"bookbazaar/pkg/store"
)

// seedadmin creates the initial admin account. Admin accounts cannot be
// created through the public signup endpoint.
func main() {
	_ = godotenv.Load()

	name := flag.String("name", "Admin", "display name for the admin account")
	email := flag.String("email", "", "admin email (required)")
	password := flag.String("password", "", "admin password (required, min 8 chars)")
	databaseURL := flag.String("database-url", os.Getenv("DATABASE_URL"), "postgres connection string")
	flag.Parse()

	if *email == "" || *password == "" {
		flag.Usage()
		os.Exit(2)
	}
	if err := auth.ValidatePassword(*password); err != nil {
		log.Fatalf("invalid password: %v", err)
	}
	if *databaseURL == "" {
		log.Fatal("database URL required (flag -database-url or DATABASE_URL)")
	}

	dataStore, err := store.NewGormStore(*databaseURL)
	if err != nil {
		log.Fatalf("connect to database: %v", err)
	}

	normalized := strings.ToLower(strings.TrimSpace(*email))
	if taken, err := dataStore.EmailTaken(normalized, ""); err != nil {
		log.Fatalf("check email: %v", err)
	} else if taken {
		log.Fatalf("email %s is already in use", normalized)
	}

	hash, err := auth.HashPassword(*password)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}
	now := time.Now().UTC()
	admin := domain.User{
		ID:           util.NewID(),
		Name:         strings.TrimSpace(*name),
		Email:        normalized,
		PasswordHash: hash,
		Role:         domain.RoleAdmin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := dataStore.CreateUser(admin); err != nil {
		log.Fatalf("create admin: %v", err)
	}
	fmt.Printf("admin account created: %s (%s)\n", admin.Email, admin.ID)
}

package main

import (
	"context"
	"log"
	"os"
	"time"

	"cais-backend/internal/shared/storage/db"
)

func main() {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	opts := db.OptionsFromEnv(db.DefaultMigrateOptions())
	sqlDB, err := db.Connect(ctx, databaseURL, opts)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer sqlDB.Close()

	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	log.Println("migrations applied")
}

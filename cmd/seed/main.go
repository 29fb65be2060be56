// Command main seeds the DoubtDesk database with demo and generated data.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"time"

	"doubtdesk/internal/config"
	"doubtdesk/internal/database"
	"doubtdesk/internal/middleware"
	"doubtdesk/internal/repository"
	"doubtdesk/internal/seed"
)

func main() {
	clean := flag.Bool("clean", false, "Delete all users, doubts and answers first")
	demo := flag.Bool("demo", true, "Load the demo dataset")
	numUsers := flag.Int("users", 0, "Number of extra generated students")
	numDoubts := flag.Int("doubts", 0, "Number of extra generated doubts")
	numAnswers := flag.Int("answers", 0, "Number of extra generated answers")
	fakeSeed := flag.Int64("seed", 0, "Seed for generated data (0 = random)")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "Lifetime of the printed development token")
	flag.Parse()

	log.Println("🌱 Database Seeder")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.IsProduction() {
		log.Fatal("Refusing to seed a production database")
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	ctx := context.Background()
	s := seed.NewSeeder(db)

	if *clean {
		if err := s.ClearAll(ctx); err != nil {
			log.Fatalf("❌ Cleanup failed: %v", err)
		}
		log.Println("✓ Existing data removed")
	}

	if *demo {
		if _, err := s.LoadDemo(ctx); err != nil {
			if !errors.Is(err, seed.ErrAlreadySeeded) {
				log.Fatalf("❌ Demo seeding failed: %v", err)
			}
			log.Println("⚠️  Users already exist, skipping demo dataset (use -clean to reset)")
		} else {
			log.Println("✓ Demo dataset loaded")
		}
	}

	if *numUsers > 0 {
		f := seed.NewFactory(db, seed.Options{
			Users:   *numUsers,
			Doubts:  *numDoubts,
			Answers: *numAnswers,
			Seed:    *fakeSeed,
		})
		if _, err := f.Generate(ctx); err != nil {
			log.Fatalf("❌ Generated seeding failed: %v", err)
		}
		log.Printf("✓ %d students, %d doubts, %d answers generated", *numUsers, *numDoubts, *numAnswers)
	}

	store := repository.NewStore(db, nil)
	if user, err := store.GetUserByEmail(ctx, seed.DemoUserEmail); err == nil {
		token, err := middleware.IssueToken(cfg.JWTSecret, user.ID, *tokenTTL)
		if err != nil {
			log.Fatalf("Failed to sign development token: %v", err)
		}
		log.Printf("🔑 Development token for %s (valid %s):\n%s", user.Email, *tokenTTL, token)
	}

	log.Println("✨ All done!")
}

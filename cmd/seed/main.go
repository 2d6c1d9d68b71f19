// Command seed loads YAML fixtures of users and notes into the database
// named by DATABASE_PATH and DATABASE_KEY. Without --file it loads the
// built-in development accounts.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/kuitang/notesmith/internal/auth"
	"github.com/kuitang/notesmith/internal/config"
	"github.com/kuitang/notesmith/internal/db"
	"github.com/kuitang/notesmith/internal/email"
	"github.com/kuitang/notesmith/internal/notes"
	"github.com/kuitang/notesmith/internal/obs"
	"github.com/kuitang/notesmith/internal/seed"
)

func main() {
	obs.Init()
	if err := run(context.Background(), os.Args[1:]); err != nil {
		obs.Pkg("seed").Error("seed_failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	file := fs.String("file", "", "path to a fixtures YAML file (default: built-in fixtures)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	fixtures, err := loadFixtures(*file)
	if err != nil {
		return err
	}

	// Seeding never talks to AI, email or S3.
	cfg, err := config.LoadConfig(config.Flags{NoAI: true, NoEmail: true, NoS3: true})
	if err != nil {
		return err
	}
	if lvl, err := obs.ParseLevel(cfg.LogLevel); err == nil {
		obs.SetLevel(lvl)
	}
	key, err := db.ParseKey(cfg.DatabaseKey)
	if err != nil {
		return err
	}
	store, err := db.Open(ctx, db.Options{Path: cfg.DatabasePath, Key: key})
	if err != nil {
		return err
	}
	defer store.Close()

	users := auth.NewUserService(store, email.NewMockEmailService(), cfg.BaseURL)
	seeder := seed.NewSeeder(users, store, notes.NewService(store, notes.Options{}))
	res, err := seeder.Apply(ctx, fixtures)
	if err != nil {
		return err
	}
	obs.Pkg("seed").Info("seed_done",
		"db", cfg.DatabasePath,
		"users_created", res.Users,
		"users_skipped", res.Skipped,
		"notes_created", res.Notes,
	)
	return nil
}

func loadFixtures(path string) (*seed.Fixtures, error) {
	if path == "" {
		return seed.Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}
	return seed.Parse(data)
}

package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/clearledger/compliance-backend/internal/infrastructure/config"
)

const defaultMigrationsDir = "migrations"

func main() {
	var (
		action  = flag.String("action", "up", "Migration action: up, down, version, force")
		steps   = flag.Int("steps", 0, "Number of migrations to run (0 = all)")
		version = flag.Int("version", -1, "Target version (for force action)")
		dir     = flag.String("dir", defaultMigrationsDir, "Migrations directory")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	m, err := migrate.New(sourceURL(*dir), cfg.Database.URL)
	if err != nil {
		slog.Error("failed to initialize migrator", "error", err)
		os.Exit(1)
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			slog.Warn("failed to close migrator", "source_error", srcErr, "db_error", dbErr)
		}
	}()

	switch *action {
	case "up":
		err = runUp(m, *steps)
	case "down":
		err = runDown(m, *steps)
	case "version":
		err = printVersion(m)
	case "force":
		if *version < 0 {
			slog.Error("version is required for force action")
			os.Exit(1)
		}
		err = m.Force(*version)
	default:
		slog.Error("unknown action", "action", *action)
		os.Exit(1)
	}

	if err != nil {
		slog.Error("migration failed", "action", *action, "error", err)
		os.Exit(1)
	}
	slog.Info("migration completed", "action", *action)
}

func runUp(m *migrate.Migrate, steps int) error {
	var err error
	if steps > 0 {
		err = m.Steps(steps)
	} else {
		err = m.Up()
	}
	if errors.Is(err, migrate.ErrNoChange) {
		slog.Info("no pending migrations")
		return nil
	}
	return err
}

// runDown rolls back one migration unless steps says otherwise. A full
// rollback requires an explicit step count; "down everything" is never
// the default on a database holding audit evidence.
func runDown(m *migrate.Migrate, steps int) error {
	if steps <= 0 {
		steps = 1
	}
	err := m.Steps(-steps)
	if errors.Is(err, migrate.ErrNoChange) {
		slog.Info("nothing to roll back")
		return nil
	}
	return err
}

func printVersion(m *migrate.Migrate) error {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		slog.Info("no migrations applied yet")
		return nil
	}
	if err != nil {
		return err
	}
	slog.Info("current schema version", "version", version, "dirty", dirty)
	return nil
}

func sourceURL(dir string) string {
	return fmt.Sprintf("file://%s", dir)
}

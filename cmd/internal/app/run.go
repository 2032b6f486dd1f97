package app

import (
	"context"
	"os/signal"
	"syscall"

	"predixa/cmd/internal/migrate"
)

// Run is the CLI entrypoint used by cmd/predixa.
// It returns an error instead of calling os.Exit so defers run.
func Run() error {
	cfg := LoadConfig()
	log := NewLogger(cfg.LogLevel, cfg.LogFormat)

	a, err := New(cfg, log)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return a.Run(ctx)
}

// Migrate applies (up) or rolls back (down) the embedded schema against PREDIXA_DATABASE_URL.
func Migrate(direction string) error {
	cfg := LoadConfig()
	log := NewLogger(cfg.LogLevel, cfg.LogFormat)

	if err := migrate.Run(cfg.DatabaseURL, migrate.Direction(direction)); err != nil {
		return err
	}
	v, dirty, err := migrate.Version(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	files, err := migrate.Files()
	if err != nil {
		return err
	}
	log.Info("db.migrate.done", "direction", direction, "version", v, "dirty", dirty, "embedded_files", len(files))
	return nil
}

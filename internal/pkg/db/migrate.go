package db

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var migrations embed.FS

// gooseLogger routes goose output through zerolog.
type gooseLogger struct{}

func (gooseLogger) Printf(format string, v ...any) {
	log.Info().Msgf(format, v...)
}

func (gooseLogger) Fatalf(format string, v ...any) {
	log.Fatal().Msgf(format, v...)
}

// Migrate applies all pending embedded migrations.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	log.Info().Msg("Running database migrations...")

	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{})
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()

	if err := goose.UpContext(ctx, sqlDB, "migrations"); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	log.Info().Msg("All migrations completed successfully")
	return nil
}

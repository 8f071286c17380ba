// Package migrations holds the Postgres schema, notify triggers and atomic turn
// clock functions, applied with goose.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
)

//go:embed *.sql
var embedMigrations embed.FS

// NotifyChannel is the channel the notify triggers publish on.
const NotifyChannel = "turnclock_changes"

// Migrate applies every pending migration to the database at pgurl.
func Migrate(ctx context.Context, pgurl string) error {
	migrationDB, err := sql.Open("pgx", pgurl)
	if err != nil {
		return fmt.Errorf("open db for migrations: %w", err)
	}
	defer migrationDB.Close()

	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	if err := goose.UpContext(ctx, migrationDB, "."); err != nil {
		return fmt.Errorf("run up migrations: %w", err)
	}

	version, err := goose.GetDBVersionContext(ctx, migrationDB)
	if err != nil {
		return fmt.Errorf("read migration version: %w", err)
	}
	log.Info().Int64("version", version).Msg("migrations applied")
	return nil
}

// Package migrations embeds the SQL schema migrations and runs them with
// golang-migrate at startup.
package migrations

import (
	"embed"
	"errors"
	"io/fs"

	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed postgres/*.sql
var files embed.FS

// Run applies all pending migrations against the database at dbURL
// (postgres:// form). Already-applied migrations are a no-op.
func Run(dbURL string) error {
	sub, err := fs.Sub(files, "postgres")
	if err != nil {
		return err
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, dbURL)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

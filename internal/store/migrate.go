package store

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// DefaultMigrations is the migration source used when none is configured.
const DefaultMigrations = "file://migrations"

// Migrate applies migrations from source to dsn. Direction is "up" or
// "down"; steps > 0 limits how many are applied. Having nothing to do is
// not an error.
func Migrate(source, dsn, direction string, steps int) error {
	if source == "" {
		source = DefaultMigrations
	}
	if dsn == "" {
		return errors.New("migrate: database dsn not configured")
	}
	if direction != "up" && direction != "down" {
		return fmt.Errorf("unknown direction: %s", direction)
	}
	m, err := migrate.New(source, dsn)
	if err != nil {
		return err
	}
	defer m.Close()

	switch {
	case direction == "up" && steps > 0:
		err = m.Steps(steps)
	case direction == "up":
		err = m.Up()
	case steps > 0:
		err = m.Steps(-steps)
	default:
		err = m.Down()
	}
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

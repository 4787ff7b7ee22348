package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	creditdomain "github.com/smallbiznis/tryon/internal/credit/domain"
	identitydomain "github.com/smallbiznis/tryon/internal/identity/domain"
	paymentdomain "github.com/smallbiznis/tryon/internal/payment/domain"
	usagedomain "github.com/smallbiznis/tryon/internal/usage/domain"
	"gorm.io/gorm"
)

//go:embed sql/*.sql
var embeddedMigrations embed.FS

const migrationsDir = "sql"

// Models lists every persisted table, in dependency order.
func Models() []any {
	return []any{
		&identitydomain.Identity{},
		&creditdomain.Transaction{},
		&paymentdomain.EventRecord{},
		&usagedomain.UsageRecord{},
	}
}

// RunMigrations applies the versioned SQL migrations to a postgres database.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	// migrator.Close would close the shared *sql.DB.
	return nil
}

// AutoMigrate creates the schema from the models on dialects without
// versioned migrations (sqlite, mysql).
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}

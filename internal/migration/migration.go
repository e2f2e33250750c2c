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
	agencydomain "github.com/smallbiznis/obligo/internal/agency/domain"
	auditdomain "github.com/smallbiznis/obligo/internal/audit/domain"
	commissiondomain "github.com/smallbiznis/obligo/internal/commission/domain"
	obligationdomain "github.com/smallbiznis/obligo/internal/obligation/domain"
	"gorm.io/gorm"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

const migrationsDir = "migrations"

// Models lists every table the engine reads or writes, in dependency order.
func Models() []any {
	return []any{
		&agencydomain.Client{},
		&agencydomain.Seller{},
		&agencydomain.Category{},
		&agencydomain.Contract{},
		&agencydomain.Sale{},
		&obligationdomain.Obligation{},
		&commissiondomain.Commission{},
		&auditdomain.AuditLog{},
	}
}

// RunMigrations applies the embedded postgres migrations.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	migrator, err := newMigrator(db)
	if err != nil {
		return err
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// Version reports the applied schema version and whether it is dirty.
func Version(db *sql.DB) (uint, bool, error) {
	if db == nil {
		return 0, false, errors.New("migration database handle is required")
	}
	migrator, err := newMigrator(db)
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := migrator.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// AutoMigrate creates the schema from the models on dialects the SQL
// migrations do not target.
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

func newMigrator(db *sql.DB) (*migrate.Migrate, error) {
	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return migrator, nil
}

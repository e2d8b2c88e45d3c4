package database

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"github.com/golang-migrate/migrate/v4"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/gorm"

	"github.com/ManuelReschke/BillingStore/migrations"
)

// Migrate applies pending schema changes for the given driver.
func Migrate(db *gorm.DB, driver string) error {
	if driver == DriverSQLite {
		return AutoMigrate(db)
	}

	m, err := NewMigrator(db)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	version, dirty, err := m.Version()
	if err == nil {
		log.Infof("[Database] schema at version %d (dirty=%v)", version, dirty)
	}
	return nil
}

// NewMigrator returns a golang-migrate instance over the embedded migration
// files, bound to the MySQL connection behind db.
func NewMigrator(db *gorm.DB) (*migrate.Migrate, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	driver, err := migratemysql.WithInstance(sqlDB, &migratemysql.Config{})
	if err != nil {
		return nil, fmt.Errorf("init migrate driver: %w", err)
	}
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("init migrate source: %w", err)
	}
	return migrate.NewWithInstance("iofs", source, "mysql", driver)
}

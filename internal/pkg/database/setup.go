package database

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ManuelReschke/BillingStore/app/models"
	"github.com/ManuelReschke/BillingStore/internal/pkg/env"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

var DB *gorm.DB

// GetDB returns the connection opened by SetupDatabase.
func GetDB() *gorm.DB {
	if DB == nil {
		panic("database not initialized. Call SetupDatabase first.")
	}
	return DB
}

// MySQLDSN builds the go-sql-driver DSN from the environment.
func MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC&multiStatements=true",
		env.GetEnv("DB_USER", "billing"),
		env.GetEnv("DB_PASSWORD", "billing"),
		env.GetEnv("DB_HOST", "127.0.0.1"),
		env.GetEnv("DB_PORT", "3306"),
		env.GetEnv("DB_NAME", "billing_db"),
	)
}

// SetupDatabase connects using DB_DRIVER and brings the schema up to date.
func SetupDatabase() error {
	driver, err := Connect()
	if err != nil {
		return err
	}
	return Migrate(DB, driver)
}

// Connect opens the database selected by DB_DRIVER without touching the
// schema and returns the driver name. MySQL connections are retried, SQLite
// is used for local runs.
func Connect() (string, error) {
	driver := env.GetEnv("DB_DRIVER", DriverMySQL)

	var err error
	switch driver {
	case DriverSQLite:
		DB, err = OpenSQLite(env.GetEnv("DB_SQLITE_PATH", "billing.db"))
		if err != nil {
			return "", err
		}
	case DriverMySQL:
		dsn := MySQLDSN()
		for i := 0; i < maxRetries; i++ {
			DB, err = OpenMySQL(dsn)
			if err == nil {
				break
			}
			log.Errorf("[Database] failed to connect (try %d/%d): %v", i+1, maxRetries, err)
			if i < maxRetries-1 {
				log.Infof("[Database] retrying in %v...", retryDelay)
				time.Sleep(retryDelay)
			}
		}
		if err != nil {
			return "", err
		}
	default:
		return "", fmt.Errorf("unsupported DB_DRIVER %q", driver)
	}
	return driver, nil
}

func OpenMySQL(dsn string) (*gorm.DB, error) {
	return gorm.Open(mysql.New(mysql.Config{
		DSN:                       dsn,
		DefaultStringSize:         256,
		DisableDatetimePrecision:  true,
		DontSupportRenameIndex:    true,
		DontSupportRenameColumn:   true,
		SkipInitializeWithVersion: false,
	}), gormConfig())
}

// OpenSQLite opens a SQLite database with foreign keys enforced. Pass
// ":memory:" for a private in-memory database.
func OpenSQLite(path string) (*gorm.DB, error) {
	dsn := path
	if path == ":memory:" {
		dsn = "file::memory:"
	}
	db, err := gorm.Open(sqlite.Open(dsn+"?_foreign_keys=on"), gormConfig())
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// One connection keeps an in-memory database alive and serialises writers.
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

func gormConfig() *gorm.Config {
	level := logger.Warn
	if env.IsDev() {
		level = logger.Info
	}
	return &gorm.Config{
		Logger:  logger.Default.LogMode(level),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}
}

// AutoMigrate materialises the schema from the models. Used for SQLite, where
// the MySQL migration files do not apply.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(models.All()...)
}

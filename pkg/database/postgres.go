package database

import (
	"errors"
	"fmt"
	"log"
	"time"

	"zalo-hub/config"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Connect opens the configured database into the package level DB and exits
// the process when it cannot.
func Connect(cfg *config.Config) {
	db, err := Open(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	DB = db
	log.Println("Database connection established")
}

// Open returns a gorm handle for cfg.DBDriver (postgres or sqlite).
func Open(cfg *config.Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger:         logger.Default.LogMode(gormLogLevel(cfg.AppMode)),
		TranslateError: true,
	}

	switch cfg.DBDriver {
	case config.DriverSQLite:
		return openSQLite(cfg.DBSQLitePath, gormCfg)
	case config.DriverPostgres, "":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
			cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort)
		db, err := gorm.Open(postgres.Open(dsn), gormCfg)
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get generic database object: %w", err)
		}

		// Connection pool settings
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
}

// OpenSQLite opens a sqlite database at path. Used for single node deployments
// and tests (":memory:" style DSNs are accepted as-is).
func OpenSQLite(path string) (*gorm.DB, error) {
	return openSQLite(path, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
}

func openSQLite(path string, gormCfg *gorm.Config) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), gormCfg)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get generic database object: %w", err)
	}
	// sqlite serialises writers; one connection avoids SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

func gormLogLevel(appMode string) logger.LogLevel {
	if appMode == "release" {
		return logger.Warn
	}
	return logger.Info
}

func Ping() error {
	if DB == nil {
		return errors.New("database not initialized")
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// HealthCheck pings the database and runs a trivial query.
func HealthCheck() error {
	if err := Ping(); err != nil {
		return err
	}
	var one int
	if err := DB.Raw("SELECT 1").Scan(&one).Error; err != nil {
		return fmt.Errorf("health query failed: %w", err)
	}
	return nil
}

func Close() {
	if DB == nil {
		return
	}
	if sqlDB, err := DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func TableExists(table string) (bool, error) {
	if DB == nil {
		return false, errors.New("database not initialized")
	}
	return DB.Migrator().HasTable(table), nil
}

func GetTableCount(table string) (int64, error) {
	var count int64
	err := DB.Table(table).Count(&count).Error
	return count, err
}

// TruncateTables removes every row from the given tables, children first.
func TruncateTables(tables []string) error {
	if DB == nil {
		return errors.New("database not initialized")
	}
	return truncate(DB, tables)
}

func truncate(db *gorm.DB, tables []string) error {
	return db.Transaction(func(tx *gorm.DB) error {
		for _, table := range tables {
			if err := tx.Exec(fmt.Sprintf("DELETE FROM %s", table)).Error; err != nil {
				return fmt.Errorf("failed to truncate %s: %w", table, err)
			}
		}
		return nil
	})
}

package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"finapp-go-be/config"
	"finapp-go-be/models"
)

// DB instance
var DB *gorm.DB

// ConnectDB opens the configured store and runs migrations.
func ConnectDB(cfg config.DatabaseConfig) error {
	gl := gormlogger.Default
	if !cfg.LogMode {
		gl = gl.LogMode(gormlogger.Silent)
	}

	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Driver {
	case "postgres":
		dsn := cfg.DSN
		if !strings.Contains(dsn, "sslmode") {
			dsn += "?sslmode=require"
		}
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gl})
	case "sqlite", "":
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create db dir: %w", err)
			}
		}
		db, err = gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{Logger: gl})
	default:
		return fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	if cfg.Driver != "postgres" {
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("get sql db: %w", err)
		}
		_, _ = sqlDB.Exec("PRAGMA journal_mode = WAL;")
		_, _ = sqlDB.Exec("PRAGMA synchronous = NORMAL;")
		_, _ = sqlDB.Exec("PRAGMA foreign_keys = ON;")
	}

	if err := Migrate(db); err != nil {
		return err
	}

	DB = db
	return nil
}

// Migrate runs schema migrations on the given connection.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Category{},
		&models.MerchantMap{},
		&models.CategoryMap{},
		&models.ExclusionRule{},
		&models.Transaction{},
		&models.StagedTransaction{},
		&models.AppSetting{},
	)
	if err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	return nil
}

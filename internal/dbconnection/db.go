package dbconnection

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/amirhossein5/rollcall/internal/models"
	"github.com/amirhossein5/rollcall/pkg/logger"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func Open(dialector gorm.Dialector, config *gorm.Config) (*gorm.DB, error) {
	logger.Named("db").Info(context.Background(), "initializing database connection")

	db, err := gorm.Open(dialector, config)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.AutoMigrate(&models.EnrolledFace{}); err != nil {
		return nil, fmt.Errorf("migrate enrolled_faces table: %w", err)
	}

	return db, nil
}

// OpenSQLite opens (creating if needed) the enrollment database at path.
func OpenSQLite(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	return Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
}

// Close releases the pool behind db.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

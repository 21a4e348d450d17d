package database

import (
	"fmt"
	"time"

	"halwakitchen/internal/models"

	"github.com/jinzhu/gorm"
	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

var db *gorm.DB

// InitDB initializes the database connection. Dialect is "sqlite3" for local
// use and tests, "postgres" for deployment.
func InitDB(dialect, dsn string) error {
	var err error
	db, err = gorm.Open(dialect, dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	db.DB().SetMaxIdleConns(10)
	db.DB().SetMaxOpenConns(100)
	db.DB().SetConnMaxLifetime(time.Hour)

	return nil
}

// Migrate creates and updates all required tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.ProcessType{},
		&models.ProductTemplate{},
		&models.TemplateStep{},
		&models.Batch{},
		&models.ProcessInstance{},
	).Error
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return db
}

// CloseDB closes the database connection
func CloseDB() error {
	if db != nil {
		return db.Close()
	}
	return nil
}

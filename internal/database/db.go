package database

import (
	"fmt"

	"github.com/jinzhu/gorm"
	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// InitDB opens the backing database. Supported dialects are "sqlite3"
// (default, also used by tests with :memory:) and "postgres".
func InitDB(dialect, dsn string) (*gorm.DB, error) {
	switch dialect {
	case "sqlite3", "postgres":
	case "":
		dialect = "sqlite3"
	default:
		return nil, fmt.Errorf("unsupported database dialect %q", dialect)
	}
	db, err := gorm.Open(dialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}
	return db, nil
}

// CloseDB closes the database connection
func CloseDB(db *gorm.DB) error {
	if db != nil {
		return db.Close()
	}
	return nil
}

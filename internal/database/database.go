package database

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pathakanu/remindbot/internal/model"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DefaultSQLitePath is used when neither a Postgres URL nor a SQLite path is configured.
const DefaultSQLitePath = "reminders.db"

// New creates a GORM database connection and migrates the schema.
// When databaseURL is provided PostgreSQL is used, otherwise SQLite at sqlitePath.
func New(databaseURL, sqlitePath string, out *log.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	if databaseURL != "" {
		dialector = postgres.Open(databaseURL)
	} else {
		if sqlitePath == "" {
			sqlitePath = DefaultSQLitePath
		}
		if err := ensureDirForSQLite(sqlitePath); err != nil {
			return nil, err
		}
		dialector = sqlite.Open(sqlitePath)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.New(out, logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.AutoMigrate(model.All()...); err != nil {
		return nil, fmt.Errorf("migrate db: %w", err)
	}

	logBackend(db, out)
	return db, nil
}

func logBackend(db *gorm.DB, out *log.Logger) {
	dialector := db.Dialector.Name()
	switch strings.ToLower(dialector) {
	case "postgres":
		out.Printf("database: connected to PostgreSQL")
	case "sqlite":
		out.Printf("database: using SQLite")
	default:
		out.Printf("database: connected via %s", dialector)
	}
}

// ensureDirForSQLite creates the parent directory of a SQLite file DSN.
func ensureDirForSQLite(dsn string) error {
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		return nil
	}
	clean := strings.TrimPrefix(dsn, "file:")
	clean = strings.Split(clean, "?")[0]
	dir := filepath.Dir(clean)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create db dir %q: %w", dir, err)
	}
	return nil
}

package repo

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/lessonforge/server/internal/agent/model"
	logx "github.com/lessonforge/server/pkg/logger"
)

// OpenDB opens the lesson tree database and migrates its tables.
func OpenDB(cfg model.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite", "":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger: gormLogger.New(gormWriter{}, gormLogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Driver, err)
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&model.Course{}, &model.Module{}, &model.Lesson{}, &model.ScriptSection{}); err != nil {
		return fmt.Errorf("migrate lesson tables: %w", err)
	}
	return nil
}

// gormWriter routes gorm's logger through zerolog.
type gormWriter struct{}

func (gormWriter) Printf(format string, args ...any) {
	logx.Warn().Str("component", "gorm").Msgf(format, args...)
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"worktime/internal/model"
)

// sqlitePragmas are appended to the DSN unless already present. Write
// transactions begin IMMEDIATE so two writers never interleave.
var sqlitePragmas = []struct{ key, value string }{
	{"_busy_timeout", "5000"},
	{"_journal_mode", "WAL"},
	{"_txlock", "immediate"},
	{"_foreign_keys", "1"},
}

// oneActiveSessionIndex enforces at most one active session per user.
const oneActiveSessionIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_work_sessions_one_active
	ON work_sessions(user_id) WHERE status = 'active'`

// NewDB opens a SQLite database and runs migrations.
func NewDB(dsn string, log *slog.Logger) (*gorm.DB, error) {
	if dsn == "" {
		dsn = "data/worktime.db"
	}
	if log == nil {
		log = slog.Default()
	}

	if err := ensureDirForSQLite(dsn); err != nil {
		return nil, err
	}

	dbLogger := logger.New(
		slog.NewLogLogger(log.Handler(), slog.LevelWarn),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(sqlite.Open(withPragmas(dsn)), &gorm.Config{
		Logger:         dbLogger,
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC().Truncate(time.Second) },
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.AutoMigrate(&model.User{}, &model.Session{}, &model.WeeklyRollup{}, &model.MonthlyRollup{}); err != nil {
		return nil, fmt.Errorf("migrate db: %w", err)
	}
	if err := db.Exec(oneActiveSessionIndex).Error; err != nil {
		return nil, fmt.Errorf("create active session index: %w", err)
	}

	return db, nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SizeBytes reports the database size from SQLite's page accounting.
func SizeBytes(ctx context.Context, db *gorm.DB) (int64, error) {
	var size int64
	err := db.WithContext(ctx).
		Raw("SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()").
		Scan(&size).Error
	if err != nil {
		return 0, fmt.Errorf("database size: %w", err)
	}
	return size, nil
}

// IsUniqueViolation reports whether err came from a unique constraint.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func withPragmas(dsn string) string {
	var extra []string
	for _, p := range sqlitePragmas {
		if !strings.Contains(dsn, p.key+"=") {
			extra = append(extra, p.key+"="+p.value)
		}
	}
	if len(extra) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(extra, "&")
}

// ensureDirForSQLite creates parent dir for SQLite file if needed.
func ensureDirForSQLite(dsn string) error {
	// Ignore DSNs with explicit mode=memory.
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		return nil
	}
	// Strip file: prefix if present.
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

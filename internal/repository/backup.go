package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/gorm"

	"worktime/internal/clock"
	"worktime/internal/model"
)

const backupLayout = "20060102_150405"

// SQLiteBackup writes consistent copies of the live database with VACUUM INTO.
type SQLiteBackup struct {
	db    *gorm.DB
	dir   string
	clock clock.Clock
}

func NewSQLiteBackup(db *gorm.DB, dir string, clk clock.Clock) *SQLiteBackup {
	if dir == "" {
		dir = "backups"
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &SQLiteBackup{db: db, dir: dir, clock: clk}
}

// Snapshot copies the database into dir/worktime_backup_YYYYMMDD_HHMMSS.db.
func (b *SQLiteBackup) Snapshot(ctx context.Context) (model.Backup, error) {
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return model.Backup{}, fmt.Errorf("create backup dir %q: %w", b.dir, err)
	}

	path, err := b.freePath()
	if err != nil {
		return model.Backup{}, err
	}

	quoted := "'" + strings.ReplaceAll(path, "'", "''") + "'"
	if err := b.db.WithContext(ctx).Exec("VACUUM INTO " + quoted).Error; err != nil {
		return model.Backup{}, fmt.Errorf("vacuum into %s: %w", path, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return model.Backup{}, fmt.Errorf("stat backup: %w", err)
	}
	return model.Backup{Path: path, SizeBytes: info.Size()}, nil
}

// freePath picks the timestamped name, adding a counter when two snapshots
// land in the same second. VACUUM INTO refuses to overwrite.
func (b *SQLiteBackup) freePath() (string, error) {
	base := "worktime_backup_" + b.clock.Now().Format(backupLayout)
	for i := 0; i < 100; i++ {
		name := base + ".db"
		if i > 0 {
			name = fmt.Sprintf("%s_%d.db", base, i)
		}
		path := filepath.Join(b.dir, name)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path, nil
		}
	}
	return "", fmt.Errorf("no free backup name for %s", base)
}

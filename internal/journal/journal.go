package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	appLogger "github.com/tomeshelf/playback/internal/logger"
	"github.com/tomeshelf/playback/internal/models"
)

// PendingWrite is a progress write that could not reach the backend. One row
// per (book, file); newer writes for the same pair replace older ones.
type PendingWrite struct {
	ID          string  `gorm:"primaryKey"`
	BookID      string  `gorm:"index:idx_book_file,unique"`
	FileID      string  `gorm:"index:idx_book_file,unique"`
	CurrentTime float64
	Duration    float64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Journal is the durable local store for progress writes that failed to reach
// the backend. The engine replays its rows (best effort) on start, so a crash
// or network outage never loses the last known position.
type Journal struct {
	db     *gorm.DB
	logger *appLogger.Logger
}

// Open opens (creating if needed) the journal database at the given path
func Open(dbPath string, log *appLogger.Logger) (*Journal, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	// SQLite only supports one writer at a time
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&PendingWrite{}); err != nil {
		return nil, fmt.Errorf("failed to migrate journal schema: %w", err)
	}

	if log != nil {
		log.Info("Progress journal opened", map[string]interface{}{
			"path": dbPath,
		})
	}

	return &Journal{db: db, logger: log}, nil
}

// Record stores (or replaces) the pending write for a (book, file) pair
func (j *Journal) Record(bookID string, upd models.ProgressUpdate) error {
	var existing PendingWrite
	err := j.db.Where("book_id = ? AND file_id = ?", bookID, upd.FileID).First(&existing).Error

	switch {
	case err == nil:
		existing.CurrentTime = upd.CurrentTime
		existing.Duration = upd.Duration
		if err := j.db.Save(&existing).Error; err != nil {
			return fmt.Errorf("failed to update pending write: %w", err)
		}
	case err == gorm.ErrRecordNotFound:
		row := PendingWrite{
			ID:          uuid.NewString(),
			BookID:      bookID,
			FileID:      upd.FileID,
			CurrentTime: upd.CurrentTime,
			Duration:    upd.Duration,
		}
		if err := j.db.Create(&row).Error; err != nil {
			return fmt.Errorf("failed to create pending write: %w", err)
		}
	default:
		return fmt.Errorf("failed to query pending write: %w", err)
	}

	if j.logger != nil {
		j.logger.Debug("Journaled pending progress write", map[string]interface{}{
			"book_id":      bookID,
			"file_id":      upd.FileID,
			"current_time": upd.CurrentTime,
		})
	}
	return nil
}

// Pending returns all journaled writes, oldest first
func (j *Journal) Pending() ([]PendingWrite, error) {
	var rows []PendingWrite
	if err := j.db.Order("updated_at asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list pending writes: %w", err)
	}
	return rows, nil
}

// Remove deletes one journaled write after it reached the backend
func (j *Journal) Remove(id string) error {
	if err := j.db.Delete(&PendingWrite{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to remove pending write: %w", err)
	}
	return nil
}

// Close closes the underlying database
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

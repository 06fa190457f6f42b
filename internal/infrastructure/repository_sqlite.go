package infrastructure

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/yourusername/reel-extract-go/internal/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// historyFilterColumns are the FindRecent filter keys accepted from callers
var historyFilterColumns = map[string]bool{
	"platform": true,
	"status":   true,
	"strategy": true,
	"reason":   true,
}

// SQLiteFetchRepository implements FetchRepository using SQLite
type SQLiteFetchRepository struct {
	db *gorm.DB
}

// NewSQLiteFetchRepository opens (and migrates) the history database
func NewSQLiteFetchRepository(dbPath string) (*SQLiteFetchRepository, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&domain.FetchRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &SQLiteFetchRepository{db: db}, nil
}

// Create stores a finished fetch
func (r *SQLiteFetchRepository) Create(record *domain.FetchRecord) error {
	return r.db.Create(record).Error
}

// FindByID finds a record by request ID. Returns nil when absent.
func (r *SQLiteFetchRepository) FindByID(id string) (*domain.FetchRecord, error) {
	var record domain.FetchRecord
	err := r.db.First(&record, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// FindRecent returns up to limit records matching filters, newest first
func (r *SQLiteFetchRepository) FindRecent(filters map[string]interface{}, limit int) ([]*domain.FetchRecord, error) {
	var records []*domain.FetchRecord
	query := r.db

	for key, value := range filters {
		if !historyFilterColumns[key] {
			return nil, fmt.Errorf("unsupported filter: %s", key)
		}
		query = query.Where(fmt.Sprintf("%s = ?", key), value)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	err := query.Order("created_at DESC").Find(&records).Error
	return records, err
}

// GetStats returns outcome totals and wins per strategy
func (r *SQLiteFetchRepository) GetStats() (*domain.FetchStats, error) {
	stats := &domain.FetchStats{Wins: make(map[string]int64)}

	if err := r.db.Model(&domain.FetchRecord{}).Count(&stats.Total).Error; err != nil {
		return nil, err
	}

	statusCounts := []struct {
		Status domain.FetchStatus
		Reason domain.FailureReason
		Count  int64
	}{}
	if err := r.db.Model(&domain.FetchRecord{}).
		Select("status, reason, count(*) as count").
		Group("status, reason").
		Scan(&statusCounts).Error; err != nil {
		return nil, err
	}

	for _, sc := range statusCounts {
		if sc.Status == domain.StatusSucceeded {
			stats.Succeeded += sc.Count
			continue
		}
		stats.Failed += sc.Count
		switch sc.Reason {
		case domain.ReasonTooLarge:
			stats.TooLarge += sc.Count
		case domain.ReasonUnsupportedPlatform:
			stats.Unsupported += sc.Count
		case domain.ReasonAllMethodsExhausted:
			stats.Exhausted += sc.Count
		}
	}

	wins := []struct {
		Strategy string
		Count    int64
	}{}
	if err := r.db.Model(&domain.FetchRecord{}).
		Select("strategy, count(*) as count").
		Where("status = ?", domain.StatusSucceeded).
		Group("strategy").
		Scan(&wins).Error; err != nil {
		return nil, err
	}
	for _, w := range wins {
		stats.Wins[w.Strategy] = w.Count
	}

	return stats, nil
}

// Close closes the database connection
func (r *SQLiteFetchRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Package storage persists run audit trails to SQLite: fills, closed
// trades, equity points and the run manifest.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"barsim/internal/domain"
)

// RunRecord is the persisted manifest of one completed run.
type RunRecord struct {
	ID           string `gorm:"primaryKey"`
	Symbol       string `gorm:"index"`
	Seed         uint64
	ConfigDigest string
	FinalEquity  string
	CreatedAt    time.Time
}

// Storage wraps the SQLite audit store.
type Storage struct {
	db *gorm.DB
}

// NewStorage opens (or creates) the database at path.
func NewStorage(path string) (*Storage, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&RunRecord{}, &domain.Fill{}, &domain.Trade{}, &domain.EquityPoint{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

// SaveRun persists a manifest plus its full audit trail in one transaction.
func (s *Storage) SaveRun(rec *RunRecord, fills []domain.Fill, trades []domain.Trade, equity []domain.EquityPoint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(rec).Error; err != nil {
			return err
		}
		if len(fills) > 0 {
			if err := tx.Create(&fills).Error; err != nil {
				return err
			}
		}
		if len(trades) > 0 {
			if err := tx.Create(&trades).Error; err != nil {
				return err
			}
		}
		if len(equity) > 0 {
			if err := tx.Create(&equity).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// GetRun retrieves a run manifest. A missing run is not an error.
func (s *Storage) GetRun(id string) (*RunRecord, error) {
	var rec RunRecord
	err := s.db.First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &rec, err
}

// ListRuns returns all run manifests, newest first.
func (s *Storage) ListRuns() ([]RunRecord, error) {
	var recs []RunRecord
	err := s.db.Order("created_at desc").Find(&recs).Error
	return recs, err
}

// FillsForRun returns the fill trail of a run in execution order.
func (s *Storage) FillsForRun(runID string) ([]domain.Fill, error) {
	var fills []domain.Fill
	err := s.db.Where("run_id = ?", runID).Order("id").Find(&fills).Error
	return fills, err
}

// TradesForRun returns the closed trades of a run in execution order.
func (s *Storage) TradesForRun(runID string) ([]domain.Trade, error) {
	var trades []domain.Trade
	err := s.db.Where("run_id = ?", runID).Order("id").Find(&trades).Error
	return trades, err
}

// EquityForRun returns the equity curve of a run in bar order.
func (s *Storage) EquityForRun(runID string) ([]domain.EquityPoint, error) {
	var points []domain.EquityPoint
	err := s.db.Where("run_id = ?", runID).Order("bar").Find(&points).Error
	return points, err
}

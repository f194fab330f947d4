package database

import (
	"context"
	"fmt"

	"binance-portfolio-api/internal/models"
	"gorm.io/gorm"
)

const (
	DefaultSnapshotLimit = 50
	MaxSnapshotLimit     = 500
)

// SnapshotStore persists the metrics computed for each report.
type SnapshotStore struct {
	db *gorm.DB
}

// NewSnapshotStore wraps an open database.
func NewSnapshotStore(db *gorm.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// Create inserts a snapshot and fills in its ID and timestamps.
func (s *SnapshotStore) Create(ctx context.Context, snapshot *models.Snapshot) error {
	if err := s.db.WithContext(ctx).Create(snapshot).Error; err != nil {
		return fmt.Errorf("failed to save snapshot for %s: %w", snapshot.Symbol, err)
	}
	return nil
}

// List returns up to limit snapshots for symbol, most recent first. A
// non-positive limit selects DefaultSnapshotLimit; larger values are capped at
// MaxSnapshotLimit.
func (s *SnapshotStore) List(ctx context.Context, symbol string, limit int) ([]models.Snapshot, error) {
	switch {
	case limit <= 0:
		limit = DefaultSnapshotLimit
	case limit > MaxSnapshotLimit:
		limit = MaxSnapshotLimit
	}

	snapshots := make([]models.Snapshot, 0)
	err := s.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("created_at desc").
		Order("id desc").
		Limit(limit).
		Find(&snapshots).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots for %s: %w", symbol, err)
	}
	return snapshots, nil
}

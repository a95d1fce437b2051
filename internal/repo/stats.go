// Package repo implements the data persistence layer for the concierge,
// backed by GORM. This file provides small aggregate queries used by the
// ops API.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/psemmelhack/fm-agent/internal/domain"
)

// CommitmentStats summarizes the commitments table.
type CommitmentStats struct {
	Total       int64      `json:"total"`
	Pending     int64      `json:"pending"`
	LastCreated *time.Time `json:"last_created,omitempty"`
}

// GetCommitmentStats returns the total number of commitments, how many still
// owe a reminder, and the newest CreatedAt. When the table is empty,
// LastCreated is nil.
func GetCommitmentStats(ctx context.Context, db *gorm.DB) (CommitmentStats, error) {
	var st CommitmentStats
	q := db.WithContext(ctx).Model(&domain.Commitment{})

	if err := q.Count(&st.Total).Error; err != nil {
		return CommitmentStats{}, err
	}
	if st.Total == 0 {
		return st, nil
	}
	if err := db.WithContext(ctx).Model(&domain.Commitment{}).
		Where("reminder_sent = ?", false).
		Count(&st.Pending).Error; err != nil {
		return CommitmentStats{}, err
	}

	// Get latest created_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		CreatedAt time.Time
	}
	if err := db.WithContext(ctx).Model(&domain.Commitment{}).
		Select("created_at").Order("created_at DESC").Limit(1).
		Scan(&row).Error; err != nil {
		return CommitmentStats{}, err
	}
	st.LastCreated = &row.CreatedAt
	return st, nil
}

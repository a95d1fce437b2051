// Package repo implements the data persistence layer for the concierge,
// backed by GORM. This file provides repository functions for Commitment.
//
// Functions:
//
//   - CreateCommitment(ctx, db, title, start, details, location) -> *domain.Commitment, error
//     Inserts a new unreminded commitment with a UUID primary key.
//
//   - DueUnremindedCommitments(ctx, db, now, lookahead) -> []domain.Commitment, error
//     Rows with reminder_sent = false whose start lies in (now, now+lookahead],
//     ordered by (start_time ASC, id ASC).
//
//   - MarkReminded(ctx, db, id, at) -> (bool, error)
//     Conditional flip of reminder_sent. Reports whether this call changed it.
//
//   - ListCommitmentsPage / CountCommitments
//     Pagination helpers for the ops API, newest first.
//
// Times are stored in UTC so that SQLite's text comparison orders them
// correctly.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/psemmelhack/fm-agent/internal/domain"
)

// CreateCommitment inserts a new Commitment row.
func CreateCommitment(ctx context.Context, db *gorm.DB, title string, start time.Time, details, location string) (*domain.Commitment, error) {
	c := &domain.Commitment{
		ID:        uuid.NewString(),
		Title:     title,
		StartTime: start.UTC(),
		Details:   details,
		Location:  location,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// DueUnremindedCommitments returns the commitments whose reminder is owed now.
func DueUnremindedCommitments(ctx context.Context, db *gorm.DB, now time.Time, lookahead time.Duration) ([]domain.Commitment, error) {
	now = now.UTC()
	var out []domain.Commitment
	err := db.WithContext(ctx).
		Where("reminder_sent = ? AND start_time > ? AND start_time <= ?", false, now, now.Add(lookahead)).
		Order("start_time ASC, id ASC").
		Find(&out).Error
	return out, err
}

// MarkReminded flips reminder_sent for id if it is still false. A second
// call returns (false, nil). An unknown id returns ErrNotFound.
func MarkReminded(ctx context.Context, db *gorm.DB, id string, at time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Commitment{}).
		Where("id = ? AND reminder_sent = ?", id, false).
		Updates(map[string]any{"reminder_sent": true, "reminded_at": at.UTC()})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 1 {
		return true, nil
	}

	var n int64
	if err := db.WithContext(ctx).Model(&domain.Commitment{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, err
	}
	if n == 0 {
		return false, ErrNotFound
	}
	return false, nil
}

// GetCommitment fetches one commitment by id.
func GetCommitment(ctx context.Context, db *gorm.DB, id string) (*domain.Commitment, error) {
	var c domain.Commitment
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// CountCommitments returns the total number of commitments.
func CountCommitments(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.Commitment{}).Count(&total).Error
	return total, err
}

// ListCommitmentsPage returns a page of commitments, most recently created
// first.
func ListCommitmentsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Commitment, error) {
	var out []domain.Commitment
	err := db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// Package repo implements the data persistence layer for the concierge,
// backed by GORM. This file records fired time-triggered obligations so a
// restart or a second process never evaluates the same occurrence twice.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/psemmelhack/fm-agent/internal/domain"
)

// ClaimTriggerRun inserts a (trigger, periodKey) row and returns
// ErrAlreadyClaimed on unique violation.
func ClaimTriggerRun(ctx context.Context, db *gorm.DB, trigger, periodKey string) error {
	if strings.TrimSpace(trigger) == "" || strings.TrimSpace(periodKey) == "" {
		return errors.New("trigger and period key are required")
	}
	rec := &domain.TriggerRun{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		PeriodKey: periodKey,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyClaimed
		}
		return err
	}
	return nil
}

// LastTriggerRun returns the most recent run for trigger, or ErrNotFound.
func LastTriggerRun(ctx context.Context, db *gorm.DB, trigger string) (*domain.TriggerRun, error) {
	var rec domain.TriggerRun
	err := db.WithContext(ctx).
		Where("trigger_name = ?", trigger).
		Order("created_at DESC").
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

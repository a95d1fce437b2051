// Package repo implements the data persistence layer for the concierge,
// backed by GORM. This file holds the singleton ConversationState row.
//
// All functions accept a *gorm.DB handle and call db.WithContext(ctx), so
// they work inside transactions as well as on the shared pool.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/psemmelhack/fm-agent/internal/domain"
)

// EnsureState inserts the singleton row as IDLE when it is missing. An
// existing row is left untouched.
func EnsureState(ctx context.Context, db *gorm.DB) error {
	st := &domain.ConversationState{
		ID:        domain.StateID,
		Phase:     domain.PhaseIdle,
		UpdatedAt: time.Now().UTC(),
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(st).Error
}

// GetState reads the singleton row. A missing row yields ErrNotFound; an
// unknown stored phase is normalized to IDLE.
func GetState(ctx context.Context, db *gorm.DB) (*domain.ConversationState, error) {
	var st domain.ConversationState
	if err := db.WithContext(ctx).First(&st, domain.StateID).Error; err != nil {
		return nil, err
	}
	st.Phase = domain.ParsePhase(string(st.Phase))
	return &st, nil
}

// SetState overwrites phase and context in one UPDATE statement.
func SetState(ctx context.Context, db *gorm.DB, phase domain.Phase, c domain.ConversationContext) error {
	res := db.WithContext(ctx).
		Model(&domain.ConversationState{}).
		Where("id = ?", domain.StateID).
		Select("phase", "context", "updated_at").
		Updates(&domain.ConversationState{
			Phase:     phase,
			Context:   c,
			UpdatedAt: time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/psemmelhack/fm-agent/internal/domain"
)

// GetCheckpoint returns the last handled marker for channel, or 0 when the
// channel has never been checkpointed.
func GetCheckpoint(ctx context.Context, db *gorm.DB, channel string) (int64, error) {
	var cp domain.Checkpoint
	err := db.WithContext(ctx).Where("channel = ?", channel).First(&cp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return cp.LastMarker, nil
}

// SaveCheckpoint upserts the cursor for channel. The stored marker never
// moves backwards: saving a smaller marker keeps the larger one.
func SaveCheckpoint(ctx context.Context, db *gorm.DB, channel string, marker int64) error {
	cp := &domain.Checkpoint{Channel: channel, LastMarker: marker, UpdatedAt: time.Now().UTC()}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "channel"}},
			DoUpdates: clause.Set{
				{Column: clause.Column{Name: "last_marker"}, Value: gorm.Expr("MAX(checkpoints.last_marker, excluded.last_marker)")},
				{Column: clause.Column{Name: "updated_at"}, Value: gorm.Expr("excluded.updated_at")},
			},
		}).
		Create(cp).Error
}

package repo

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/psemmelhack/fm-agent/internal/domain"
)

// CreateMemory appends a memory row.
func CreateMemory(ctx context.Context, db *gorm.DB, kind, summary string) (*domain.Memory, error) {
	m := &domain.Memory{
		ID:        uuid.NewString(),
		Kind:      kind,
		Summary:   summary,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// RecentMemories returns the newest limit memories in chronological order
// (oldest of the window first). A non-positive limit returns nothing.
func RecentMemories(ctx context.Context, db *gorm.DB, limit int) ([]domain.Memory, error) {
	if limit <= 0 {
		return nil, nil
	}
	var out []domain.Memory
	err := db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}

package services

import (
	"context"
	"time"

	"github.com/psemmelhack/fm-agent/internal/domain"
)

// Store is the persistence contract the executors depend on. repo.Store
// implements it; every failure is a *repo.StorageError.
type Store interface {
	EnsureState(ctx context.Context) error
	GetState(ctx context.Context) (*domain.ConversationState, error)
	SetState(ctx context.Context, phase domain.Phase, c domain.ConversationContext) error

	SaveCommitment(ctx context.Context, title string, start time.Time, details, location string) (string, error)
	DueUnremindedCommitments(ctx context.Context, now time.Time, lookahead time.Duration) ([]domain.Commitment, error)
	MarkReminded(ctx context.Context, id string, at time.Time) (bool, error)
	ListCommitments(ctx context.Context, offset, limit int) ([]domain.Commitment, error)
	CountCommitments(ctx context.Context) (int64, error)

	WriteMemory(ctx context.Context, kind, summary string) error
	RecentMemories(ctx context.Context, limit int) ([]domain.Memory, error)

	GetCheckpoint(ctx context.Context, channel string) (int64, error)
	SaveCheckpoint(ctx context.Context, channel string, marker int64) error
	ClaimTriggerRun(ctx context.Context, trigger, periodKey string) error
}

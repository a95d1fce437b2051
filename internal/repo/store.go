package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/psemmelhack/fm-agent/internal/domain"
)

// Store bundles the repository functions behind one handle and converts
// every failure into a *StorageError. It satisfies services.Store.
type Store struct {
	db *gorm.DB
}

// NewStore wraps db.
func NewStore(db *gorm.DB) *Store { return &Store{db: db} }

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) EnsureState(ctx context.Context) error {
	return wrap("ensure state", EnsureState(ctx, s.db))
}

func (s *Store) GetState(ctx context.Context) (*domain.ConversationState, error) {
	st, err := GetState(ctx, s.db)
	if err != nil {
		return nil, wrap("get state", err)
	}
	return st, nil
}

func (s *Store) SetState(ctx context.Context, phase domain.Phase, c domain.ConversationContext) error {
	return wrap("set state", SetState(ctx, s.db, phase, c))
}

func (s *Store) SaveCommitment(ctx context.Context, title string, start time.Time, details, location string) (string, error) {
	c, err := CreateCommitment(ctx, s.db, title, start, details, location)
	if err != nil {
		return "", wrap("save commitment", err)
	}
	return c.ID, nil
}

func (s *Store) DueUnremindedCommitments(ctx context.Context, now time.Time, lookahead time.Duration) ([]domain.Commitment, error) {
	out, err := DueUnremindedCommitments(ctx, s.db, now, lookahead)
	if err != nil {
		return nil, wrap("due commitments", err)
	}
	return out, nil
}

func (s *Store) MarkReminded(ctx context.Context, id string, at time.Time) (bool, error) {
	changed, err := MarkReminded(ctx, s.db, id, at)
	return changed, wrap("mark reminded", err)
}

func (s *Store) ListCommitments(ctx context.Context, offset, limit int) ([]domain.Commitment, error) {
	out, err := ListCommitmentsPage(ctx, s.db, offset, limit)
	if err != nil {
		return nil, wrap("list commitments", err)
	}
	return out, nil
}

func (s *Store) CountCommitments(ctx context.Context) (int64, error) {
	n, err := CountCommitments(ctx, s.db)
	return n, wrap("count commitments", err)
}

func (s *Store) WriteMemory(ctx context.Context, kind, summary string) error {
	_, err := CreateMemory(ctx, s.db, kind, summary)
	return wrap("write memory", err)
}

func (s *Store) RecentMemories(ctx context.Context, limit int) ([]domain.Memory, error) {
	out, err := RecentMemories(ctx, s.db, limit)
	if err != nil {
		return nil, wrap("recent memories", err)
	}
	return out, nil
}

func (s *Store) GetCheckpoint(ctx context.Context, channel string) (int64, error) {
	m, err := GetCheckpoint(ctx, s.db, channel)
	return m, wrap("get checkpoint", err)
}

func (s *Store) SaveCheckpoint(ctx context.Context, channel string, marker int64) error {
	return wrap("save checkpoint", SaveCheckpoint(ctx, s.db, channel, marker))
}

// ClaimTriggerRun returns ErrAlreadyClaimed unwrapped so callers can tell a
// duplicate apart from a storage failure.
func (s *Store) ClaimTriggerRun(ctx context.Context, trigger, periodKey string) error {
	return wrap("claim trigger run", ClaimTriggerRun(ctx, s.db, trigger, periodKey))
}

func (s *Store) CommitmentStats(ctx context.Context) (CommitmentStats, error) {
	st, err := GetCommitmentStats(ctx, s.db)
	return st, wrap("commitment stats", err)
}

func (s *Store) Ping(ctx context.Context) error {
	return wrap("ping", Ping(ctx, s.db))
}

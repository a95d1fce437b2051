// Package services – OpsService
//
// OpsService backs the operator HTTP surface: a read of the conversation
// state and a paginated list of commitments. It never writes.
package services

import (
	"context"

	"github.com/psemmelhack/fm-agent/internal/domain"
	"github.com/psemmelhack/fm-agent/internal/utils"
)

// OpsService exposes read-only views over the store.
type OpsService struct {
	Store Store

	// MaxPageSize caps the page size callers may ask for; 0 means
	// utils.MaxPageSize.
	MaxPageSize int
}

// NewOpsService constructs an OpsService with the default page cap.
func NewOpsService(s Store) *OpsService {
	return &OpsService{Store: s, MaxPageSize: utils.MaxPageSize}
}

// State returns the current conversation state.
func (s *OpsService) State(ctx context.Context) (*domain.ConversationState, error) {
	return s.Store.GetState(ctx)
}

// Commitments returns one page of commitments, newest first, and the total.
// Invalid page or pageSize values fall back to 1 and 20.
func (s *OpsService) Commitments(ctx context.Context, page, pageSize int) ([]domain.Commitment, int64, error) {
	page, pageSize = utils.ClampPage(page, pageSize, s.MaxPageSize)
	offset := utils.Offset(page, pageSize)

	total, err := s.Store.CountCommitments(ctx)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Commitment{}, 0, nil
	}

	items, err := s.Store.ListCommitments(ctx, offset, pageSize)
	return items, total, err
}

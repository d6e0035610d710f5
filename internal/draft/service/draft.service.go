package service

import (
	"context"
	"errors"
	"strings"

	"reviewdraft/internal/draft/model"
	"reviewdraft/internal/draft/repository"
)

var (
	ErrNotFound        = errors.New("draft not found")
	ErrMissingRecordID = errors.New("record id is required")
)

// DraftService serves drafts outside an editing session.
type DraftService struct {
	Store repository.Store
}

func NewDraftService(store repository.Store) *DraftService {
	return &DraftService{Store: store}
}

func (s *DraftService) GetDraft(ctx context.Context, recordID string) (*model.DraftResponse, error) {
	if strings.TrimSpace(recordID) == "" {
		return nil, ErrMissingRecordID
	}
	d, err := s.Store.Load(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, ErrNotFound
	}
	return &model.DraftResponse{RecordID: d.RecordID, Content: d.Content, UpdatedAt: d.UpdatedAt}, nil
}

// DiscardDraft removes a draft the reviewer explicitly threw away. Discarding
// a draft that does not exist succeeds.
func (s *DraftService) DiscardDraft(ctx context.Context, recordID string) error {
	if strings.TrimSpace(recordID) == "" {
		return ErrMissingRecordID
	}
	return s.Store.Delete(ctx, recordID)
}

package storage

import (
	"context"
	"errors"

	"daoup/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Storage defines a sink for synced campaign data.
type Storage interface {
	PutCampaignBatch(ctx context.Context, snapshots []model.CampaignSnapshot) error
	PutActionBatch(ctx context.Context, actions []model.ActionRecord) error
}

// Multi writes every batch to each sink in order, stopping at the first error.
type Multi []Storage

func (m Multi) PutCampaignBatch(ctx context.Context, snapshots []model.CampaignSnapshot) error {
	for _, s := range m {
		if err := s.PutCampaignBatch(ctx, snapshots); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) PutActionBatch(ctx context.Context, actions []model.ActionRecord) error {
	for _, s := range m {
		if err := s.PutActionBatch(ctx, actions); err != nil {
			return err
		}
	}
	return nil
}

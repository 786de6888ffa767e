package indexer

import (
	"time"

	"daoup/internal/chain"
	"daoup/internal/model"
)

func buildSnapshot(c model.Campaign, syncedAt time.Time) model.CampaignSnapshot {
	return model.CampaignSnapshot{
		Campaign: c,
		SyncedAt: syncedAt.UTC().Format(time.RFC3339Nano),
	}
}

func buildSyncError(address string, err error, at time.Time) model.SyncError {
	return model.SyncError{
		Campaign: address,
		Code:     chain.CodeOf(err).String(),
		Error:    err.Error(),
		At:       at.UTC().Format(time.RFC3339Nano),
	}
}

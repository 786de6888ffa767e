package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"daoup/internal/model"
	"daoup/internal/storage"
)

// setupStore starts a Postgres container and applies the schema.
func setupStore(t *testing.T) *Store {
	t.Helper()
	if os.Getenv("DAOUP_INTEGRATION") != "1" {
		t.Skip("set DAOUP_INTEGRATION=1 to run Postgres integration tests")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("daoup"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	store, err := NewStore(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Migrate(ctx), "schema must be re-runnable")
	return store
}

func TestStoreCampaignUpsert(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	price := 2.0
	snap := model.CampaignSnapshot{
		Campaign: model.Campaign{
			Address:      "juno1a",
			Name:         "Garden",
			Status:       model.StatusOpen,
			Goal:         100,
			Pledged:      25,
			PayToken:     model.PayToken{Denom: "ujuno"},
			FundingToken: model.Token{Address: "juno1f", Price: &price},
		},
		SyncedAt: "2024-03-01T00:00:00Z",
	}
	require.NoError(t, store.PutCampaignBatch(ctx, []model.CampaignSnapshot{snap}))

	newer := snap
	newer.Pledged = 40
	newer.SyncedAt = "2024-03-02T00:00:00Z"
	require.NoError(t, store.PutCampaignBatch(ctx, []model.CampaignSnapshot{newer}))

	older := snap
	older.Pledged = 1
	require.NoError(t, store.PutCampaignBatch(ctx, []model.CampaignSnapshot{older}))

	got, err := store.LoadCampaign(ctx, "juno1a")
	require.NoError(t, err)
	require.Equal(t, 40.0, got.Pledged)
	require.Equal(t, "2024-03-02T00:00:00Z", got.SyncedAt)

	_, err = store.LoadCampaign(ctx, "juno1missing")
	require.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestStoreActionsAndState(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	when := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	actions := []model.ActionRecord{
		{Campaign: "juno1a", TxHash: "AA", Height: 10, Type: model.ActionFund, Address: "juno1b", Amount: "5000000", Timestamp: &when},
		{Campaign: "juno1a", TxHash: "BB", Height: 12, Type: model.ActionRefund, Address: "juno1b", Amount: "1000000"},
	}
	require.NoError(t, store.PutActionBatch(ctx, actions))
	require.NoError(t, store.PutActionBatch(ctx, actions))

	stored, err := store.ListActions(ctx, "juno1a")
	require.NoError(t, err)
	require.Len(t, stored, 2)
	require.Equal(t, "BB", stored[0].TxHash)
	require.Equal(t, "5000000", stored[1].Amount)
	require.True(t, when.Equal(*stored[1].Timestamp))

	_, ok, err := store.LoadState(ctx, "sync")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.SaveState(ctx, "sync", "juno1a"))
	last, ok, err := store.LoadState(ctx, "sync")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "juno1a", last)
}

package indexer

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"daoup/internal/campaign"
	"daoup/internal/chain"
	"daoup/internal/model"
)

type listSource []string

func (l listSource) Addresses(ctx context.Context) ([]string, error) {
	return l, nil
}

type flakyLoader struct {
	mu       sync.Mutex
	failures map[string]int
	broken   map[string]error
	calls    map[string]int
}

func (l *flakyLoader) Campaign(ctx context.Context, address string) (model.Campaign, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls[address]++
	if err := l.broken[address]; err != nil {
		return model.Campaign{}, err
	}
	if l.failures[address] > 0 {
		l.failures[address]--
		return model.Campaign{}, chain.Wrap(errors.New("dial tcp: connection refused"))
	}
	return model.Campaign{Address: address, Name: "Campaign " + address, Status: model.StatusOpen}, nil
}

type historyTable map[string][]model.ActionRecord

func (h historyTable) Records(ctx context.Context, address string) ([]model.ActionRecord, error) {
	return h[address], nil
}

type memoryStorage struct {
	snapshots []model.CampaignSnapshot
	actions   []model.ActionRecord
	errs      []model.SyncError
}

func (m *memoryStorage) PutCampaignBatch(ctx context.Context, snapshots []model.CampaignSnapshot) error {
	m.snapshots = append(m.snapshots, snapshots...)
	return nil
}

func (m *memoryStorage) PutActionBatch(ctx context.Context, actions []model.ActionRecord) error {
	m.actions = append(m.actions, actions...)
	return nil
}

func (m *memoryStorage) PutSyncErrorBatch(ctx context.Context, errs []model.SyncError) error {
	m.errs = append(m.errs, errs...)
	return nil
}

func newLoader() *flakyLoader {
	return &flakyLoader{failures: map[string]int{}, broken: map[string]error{}, calls: map[string]int{}}
}

func TestRunnerSyncsAndSkipsFailures(t *testing.T) {
	loader := newLoader()
	loader.failures["b"] = 1
	loader.broken["c"] = campaign.ErrIncompleteState

	store := &memoryStorage{}
	history := historyTable{"a": {{Campaign: "a", TxHash: "AA", Type: model.ActionFund, Amount: "1"}}}
	checkpoint := NewCheckpointStore(filepath.Join(t.TempDir(), "checkpoint.json"), true)

	runner := NewRunner(RunConfig{
		BatchSize:    2,
		Concurrency:  2,
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
		SyncActions:  true,
	}, listSource{"a", "b", "c", "d"}, loader, history, store, checkpoint, nil)
	runner.SetErrorSink(store)

	result, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Total != 4 || result.Synced != 3 || result.Failed != 1 || result.Actions != 1 {
		t.Fatalf("result = %+v", result)
	}
	if len(store.snapshots) != 3 || len(store.actions) != 1 {
		t.Fatalf("stored %d snapshots, %d actions", len(store.snapshots), len(store.actions))
	}
	if len(store.errs) != 1 || store.errs[0].Campaign != "c" {
		t.Fatalf("sync errors = %+v", store.errs)
	}
	if loader.calls["b"] != 2 {
		t.Fatalf("transient failure attempts = %d, want 2", loader.calls["b"])
	}
	if loader.calls["c"] != 1 {
		t.Fatalf("malformed campaign retried %d times", loader.calls["c"])
	}

	last, ok, err := checkpoint.Load(context.Background())
	if err != nil || !ok || last != "" {
		t.Fatalf("checkpoint after complete pass = %q, %v, %v", last, ok, err)
	}
}

func TestRunnerResumesAfterCheckpoint(t *testing.T) {
	checkpoint := NewCheckpointStore(filepath.Join(t.TempDir(), "state", "checkpoint.json"), true)
	if err := checkpoint.Save(context.Background(), "b"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loader := newLoader()
	store := &memoryStorage{}
	runner := NewRunner(RunConfig{BatchSize: 10}, listSource{"a", "b", "c"}, loader, nil, store, checkpoint, nil)

	if _, err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(store.snapshots) != 1 || store.snapshots[0].Address != "c" {
		t.Fatalf("snapshots = %+v", store.snapshots)
	}
	if loader.calls["a"] != 0 || loader.calls["b"] != 0 {
		t.Fatalf("re-synced checkpointed campaigns: %v", loader.calls)
	}
}

func TestRunnerExplicitAddresses(t *testing.T) {
	loader := newLoader()
	store := &memoryStorage{}
	runner := NewRunner(RunConfig{BatchSize: 1, Addresses: []string{"z"}}, nil, loader, nil, store, nil, nil)

	result, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Synced != 1 || store.snapshots[0].Address != "z" || store.snapshots[0].SyncedAt == "" {
		t.Fatalf("result = %+v, snapshots = %+v", result, store.snapshots)
	}
}

type memoryBackend map[string]string

func (m memoryBackend) LoadState(ctx context.Context, name string) (string, bool, error) {
	v, ok := m[name]
	return v, ok, nil
}

func (m memoryBackend) SaveState(ctx context.Context, name, lastAddress string) error {
	m[name] = lastAddress
	return nil
}

func TestDBStateStore(t *testing.T) {
	backend := memoryBackend{}
	state := &DBStateStore{Backend: backend, Name: "sync"}
	if err := state.Save(context.Background(), "juno1a"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	last, ok, err := state.Load(context.Background())
	if err != nil || !ok || last != "juno1a" {
		t.Fatalf("Load = %q, %v, %v", last, ok, err)
	}

	var empty *DBStateStore
	if _, ok, err := empty.Load(context.Background()); ok || err != nil {
		t.Fatalf("nil store load = %v, %v", ok, err)
	}
}

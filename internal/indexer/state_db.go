package indexer

import "context"

// StateBackend is a named state table, such as the Postgres sync_state table.
type StateBackend interface {
	LoadState(ctx context.Context, name string) (string, bool, error)
	SaveState(ctx context.Context, name, lastAddress string) error
}

// DBStateStore stores progress in a StateBackend row.
type DBStateStore struct {
	Backend StateBackend
	Name    string
}

func (s *DBStateStore) Load(ctx context.Context) (string, bool, error) {
	if s == nil || s.Backend == nil {
		return "", false, nil
	}
	return s.Backend.LoadState(ctx, s.Name)
}

func (s *DBStateStore) Save(ctx context.Context, lastAddress string) error {
	if s == nil || s.Backend == nil {
		return nil
	}
	return s.Backend.SaveState(ctx, s.Name, lastAddress)
}

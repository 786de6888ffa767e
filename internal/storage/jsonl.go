package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"daoup/internal/model"
)

// Record kinds written to the JSONL file.
const (
	KindCampaign  = "campaign"
	KindAction    = "action"
	KindSyncError = "sync_error"
)

// JsonlRecord is one line of the JSONL output.
type JsonlRecord struct {
	Kind      string                  `json:"kind"`
	Campaign  *model.CampaignSnapshot `json:"campaign,omitempty"`
	Action    *model.ActionRecord     `json:"action,omitempty"`
	SyncError *model.SyncError        `json:"sync_error,omitempty"`
}

// JsonlStorage appends campaign snapshots and actions to a JSONL file.
type JsonlStorage struct {
	path string
	mu   sync.Mutex
}

func NewJsonlStorage(path string) *JsonlStorage {
	return &JsonlStorage{path: path}
}

// PutCampaignBatch appends campaign snapshots as JSON lines.
func (s *JsonlStorage) PutCampaignBatch(ctx context.Context, snapshots []model.CampaignSnapshot) error {
	records := make([]JsonlRecord, 0, len(snapshots))
	for i := range snapshots {
		records = append(records, JsonlRecord{Kind: KindCampaign, Campaign: &snapshots[i]})
	}
	return s.write(records)
}

// PutActionBatch appends action records as JSON lines.
func (s *JsonlStorage) PutActionBatch(ctx context.Context, actions []model.ActionRecord) error {
	records := make([]JsonlRecord, 0, len(actions))
	for i := range actions {
		records = append(records, JsonlRecord{Kind: KindAction, Action: &actions[i]})
	}
	return s.write(records)
}

// PutSyncErrorBatch appends campaigns that failed to sync.
func (s *JsonlStorage) PutSyncErrorBatch(ctx context.Context, errs []model.SyncError) error {
	records := make([]JsonlRecord, 0, len(errs))
	for i := range errs {
		records = append(records, JsonlRecord{Kind: KindSyncError, SyncError: &errs[i]})
	}
	return s.write(records)
}

func (s *JsonlStorage) write(records []JsonlRecord) error {
	if len(records) == 0 {
		return nil
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, record := range records {
		line, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal %s record: %w", record.Kind, err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write %s record: %w", record.Kind, err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}

	return nil
}

// ReadJsonl decodes every record of a JSONL file written by JsonlStorage.
func ReadJsonl(path string) ([]JsonlRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open jsonl: %w", err)
	}
	defer file.Close()

	var out []JsonlRecord
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var record JsonlRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			return nil, fmt.Errorf("parse line %d: %w", line, err)
		}
		out = append(out, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan jsonl: %w", err)
	}
	return out, nil
}

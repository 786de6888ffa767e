package indexer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"daoup/internal/campaign"
	"daoup/internal/model"
	"daoup/internal/storage"
)

// RunConfig holds runtime settings for a sync pass.
type RunConfig struct {
	// Addresses limits the pass to these campaigns; empty syncs the registry.
	Addresses    []string
	BatchSize    int
	Concurrency  int
	MaxRetries   int
	RetryBackoff time.Duration
	SyncActions  bool
}

// ActionSource reads the fund and refund history of a campaign.
type ActionSource interface {
	Records(ctx context.Context, campaign string) ([]model.ActionRecord, error)
}

// ErrorSink receives campaigns that failed to sync.
type ErrorSink interface {
	PutSyncErrorBatch(ctx context.Context, errs []model.SyncError) error
}

// Result summarizes a sync pass.
type Result struct {
	Total   int
	Synced  int
	Failed  int
	Actions int
	Errors  []model.SyncError
}

// Runner syncs campaign snapshots and actions from the chain into storage.
type Runner struct {
	cfg     RunConfig
	source  campaign.AddressSource
	loader  campaign.Loader
	history ActionSource
	storage storage.Storage
	state   StateStore
	errors  ErrorSink
	logger  *zap.Logger
	now     func() time.Time
}

// NewRunner builds a Runner with its dependencies. history and state may be nil.
func NewRunner(cfg RunConfig, source campaign.AddressSource, loader campaign.Loader, history ActionSource, storageSink storage.Storage, state StateStore, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:     cfg,
		source:  source,
		loader:  loader,
		history: history,
		storage: storageSink,
		state:   state,
		logger:  logger,
		now:     time.Now,
	}
}

// SetErrorSink routes failed campaigns to sink.
func (r *Runner) SetErrorSink(sink ErrorSink) {
	r.errors = sink
}

// Run executes one sync pass, resuming after the last checkpointed address.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	if r.loader == nil {
		return Result{}, fmt.Errorf("campaign loader is nil")
	}
	if r.storage == nil {
		return Result{}, fmt.Errorf("storage is nil")
	}
	if r.cfg.BatchSize <= 0 {
		return Result{}, fmt.Errorf("batch size must be greater than zero")
	}

	addresses, err := r.addresses(ctx)
	if err != nil {
		return Result{}, err
	}
	result := Result{Total: len(addresses)}

	from := 0
	if r.state != nil {
		last, ok, err := r.state.Load(ctx)
		if err != nil {
			return result, fmt.Errorf("load checkpoint: %w", err)
		}
		if ok && last != "" {
			for i, address := range addresses {
				if address == last {
					from = i + 1
					r.logger.Info("resume from checkpoint", zap.String("last_address", last), zap.Int("from", from))
					break
				}
			}
		}
	}

	remaining := addresses[from:]
	if len(remaining) == 0 {
		r.logger.Info("nothing to sync", zap.Int("total", len(addresses)))
		return result, r.saveState(ctx, "")
	}

	batches, err := SplitBatches(len(remaining), r.cfg.BatchSize)
	if err != nil {
		return result, err
	}

	for _, batch := range batches {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		batchAddresses := remaining[batch.From : batch.To+1]
		r.logger.Info("sync batch", zap.Int("from", from+batch.From), zap.Int("to", from+batch.To))

		if err := r.syncBatch(ctx, batchAddresses, &result); err != nil {
			return result, err
		}
		if err := r.saveState(ctx, batchAddresses[len(batchAddresses)-1]); err != nil {
			return result, err
		}
	}

	r.logger.Info("sync complete",
		zap.Int("total", result.Total), zap.Int("synced", result.Synced),
		zap.Int("failed", result.Failed), zap.Int("actions", result.Actions))
	return result, r.saveState(ctx, "")
}

func (r *Runner) addresses(ctx context.Context) ([]string, error) {
	if len(r.cfg.Addresses) > 0 {
		return r.cfg.Addresses, nil
	}
	if r.source == nil {
		return nil, fmt.Errorf("campaign source is nil")
	}
	var addresses []string
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		addresses, err = r.source.Addresses(ctx)
		if err != nil {
			r.logger.Warn("list campaigns failed", zap.Error(err))
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	return addresses, nil
}

func (r *Runner) syncBatch(ctx context.Context, addresses []string, result *Result) error {
	responses := campaign.FetchAll(ctx, retryLoader{runner: r}, addresses, r.cfg.Concurrency)

	syncedAt := r.now()
	snapshots := make([]model.CampaignSnapshot, 0, len(responses))
	var syncErrors []model.SyncError
	for _, resp := range responses {
		if resp.Err != nil {
			r.logger.Warn("campaign sync failed", zap.String("campaign", resp.Address), zap.Error(resp.Err))
			syncErrors = append(syncErrors, buildSyncError(resp.Address, resp.Err, syncedAt))
			continue
		}
		snapshots = append(snapshots, buildSnapshot(*resp.Campaign, syncedAt))
	}

	if err := r.storage.PutCampaignBatch(ctx, snapshots); err != nil {
		return fmt.Errorf("store campaigns: %w", err)
	}
	result.Synced += len(snapshots)

	if r.cfg.SyncActions && r.history != nil {
		var actions []model.ActionRecord
		for _, snap := range snapshots {
			records, err := r.recordsWithRetry(ctx, snap.Address)
			if err != nil {
				r.logger.Warn("campaign actions failed", zap.String("campaign", snap.Address), zap.Error(err))
				syncErrors = append(syncErrors, buildSyncError(snap.Address, err, syncedAt))
				continue
			}
			actions = append(actions, records...)
		}
		if err := r.storage.PutActionBatch(ctx, actions); err != nil {
			return fmt.Errorf("store actions: %w", err)
		}
		result.Actions += len(actions)
	}

	result.Failed += len(syncErrors)
	result.Errors = append(result.Errors, syncErrors...)
	if r.errors != nil && len(syncErrors) > 0 {
		if err := r.errors.PutSyncErrorBatch(ctx, syncErrors); err != nil {
			return fmt.Errorf("store sync errors: %w", err)
		}
	}

	r.logger.Info("batch complete", zap.Int("campaigns", len(snapshots)), zap.Int("failed", len(syncErrors)))
	return nil
}

func (r *Runner) recordsWithRetry(ctx context.Context, address string) ([]model.ActionRecord, error) {
	var records []model.ActionRecord
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		records, err = r.history.Records(ctx, address)
		return err
	})
	return records, err
}

func (r *Runner) saveState(ctx context.Context, lastAddress string) error {
	if r.state == nil {
		return nil
	}
	if err := r.state.Save(ctx, lastAddress); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// retryLoader retries transient campaign load failures.
type retryLoader struct {
	runner *Runner
}

func (l retryLoader) Campaign(ctx context.Context, address string) (model.Campaign, error) {
	var c model.Campaign
	err := withRetry(ctx, l.runner.cfg.MaxRetries, l.runner.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		c, err = l.runner.loader.Campaign(ctx, address)
		if err != nil {
			l.runner.logger.Debug("campaign load attempt failed", zap.String("campaign", address), zap.Error(err))
		}
		return err
	})
	return c, err
}

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"daoup/internal/indexer"
	"daoup/internal/storage"
	"daoup/internal/storage/postgres"
)

const syncStateName = "campaigns"

func addSyncFlags(cmd *cobra.Command) {
	cmd.Flags().String("out", "./data/campaigns.jsonl", "output JSONL path, empty disables")
	cmd.Flags().String("errors", "./data/sync_errors.jsonl", "failed campaigns JSONL path, empty disables")
	cmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	cmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN; also stores the checkpoint when set")
	cmd.Flags().Int("batch-size", 50, "campaigns per batch")
	cmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	cmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	cmd.Flags().Bool("sync-actions", true, "also sync fund and refund history")
}

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Snapshot campaigns and their actions into JSONL and/or Postgres",
		RunE:  runSync,
	}
	addSyncFlags(cmd)
	cmd.Flags().StringSlice("address", nil, "only sync these campaign addresses (comma-separated)")
	return cmd
}

func runSync(cmd *cobra.Command, _ []string) error {
	a, ctx, cleanup, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	inputs, _ := cmd.Flags().GetStringSlice("address")
	addresses, err := indexer.ParseAddresses(inputs, a.cfg.Bech32Prefix)
	if err != nil {
		return err
	}

	runner, closeRunner, err := a.newRunner(ctx, cmd, addresses)
	if err != nil {
		return err
	}
	defer closeRunner()

	result, err := runner.Run(ctx)
	a.metrics.RecordSync(result.Synced, result.Failed, result.Actions)
	a.logger.Info("sync done",
		zap.Int("total", result.Total),
		zap.Int("synced", result.Synced),
		zap.Int("failed", result.Failed),
		zap.Int("actions", result.Actions),
	)
	return err
}

// newRunner wires the sync runner to the configured sinks and checkpoint store.
func (a *app) newRunner(ctx context.Context, cmd *cobra.Command, addresses []string) (*indexer.Runner, func(), error) {
	errorsPath, _ := cmd.Flags().GetString("errors")
	checkpointEnabled, _ := cmd.Flags().GetBool("checkpoint-enabled")
	syncActions, _ := cmd.Flags().GetBool("sync-actions")

	var sinks storage.Multi
	if a.cfg.Out != "" {
		sinks = append(sinks, storage.NewJsonlStorage(a.cfg.Out))
	}

	var state indexer.StateStore = indexer.NewCheckpointStore(a.cfg.Checkpoint, checkpointEnabled)
	closeFn := func() {}
	if a.cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, a.cfg.PGDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
		sinks = append(sinks, store)
		if checkpointEnabled {
			state = &indexer.DBStateStore{Backend: store, Name: syncStateName}
		}
		closeFn = store.Close
	}
	if len(sinks) == 0 {
		closeFn()
		return nil, nil, fmt.Errorf("no output configured: set --out or --pg-dsn")
	}

	var history indexer.ActionSource
	if syncActions {
		history = a.history
	}

	runner := indexer.NewRunner(indexer.RunConfig{
		Addresses:    addresses,
		BatchSize:    a.cfg.BatchSize,
		Concurrency:  a.cfg.Concurrency,
		MaxRetries:   a.cfg.MaxRetries,
		RetryBackoff: a.cfg.RetryBackoff,
		SyncActions:  syncActions,
	}, a.registry, a.fetcher, history, sinks, state, a.logger)
	if errorsPath != "" {
		runner.SetErrorSink(storage.NewJsonlStorage(errorsPath))
	}

	a.logger.Info("sync start",
		zap.String("rpc", a.cfg.RPCURL),
		zap.Int("addresses", len(addresses)),
		zap.Int("batch_size", a.cfg.BatchSize),
		zap.String("out", a.cfg.Out),
		zap.Bool("postgres", a.cfg.PGDSN != ""),
		zap.Bool("sync_actions", syncActions),
	)
	return runner, closeFn, nil
}

package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"daoup/internal/api"
	"daoup/internal/campaign"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON API and metrics",
		RunE:  runServe,
	}
	cmd.Flags().String("listen", ":8080", "HTTP listen address")
	cmd.Flags().Duration("refresh", time.Minute, "live list reload interval")
	cmd.Flags().Duration("sync-interval", 0, "run a sync pass on this interval, 0 disables")
	addSyncFlags(cmd)
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, ctx, cleanup, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	refresh, _ := cmd.Flags().GetDuration("refresh")
	syncInterval, _ := cmd.Flags().GetDuration("sync-interval")

	live := campaign.NewListService(a.registry, a.fetcher, campaign.DefaultListOptions(),
		campaign.ListConfig{Debounce: a.cfg.FilterDebounce, Concurrency: a.cfg.Concurrency}, a.logger)
	defer live.Close()

	handler := api.NewServer(a.catalog(), a.history, a.fetcher, a.metrics, api.Config{
		Bech32Prefix: a.cfg.Bech32Prefix,
		Concurrency:  a.cfg.Concurrency,
		Live:         live,
		Metrics:      a.metrics.Handler(),
	}, a.logger)
	srv := api.NewHTTPServer(a.cfg.Listen, handler)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("serve start", zap.String("listen", a.cfg.Listen))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return keepLive(ctx, a, live, refresh)
	})
	if syncInterval > 0 {
		g.Go(func() error {
			return syncLoop(ctx, a, cmd, syncInterval)
		})
	}
	return g.Wait()
}

// keepLive reloads the live list on an interval and mirrors its filter generation.
func keepLive(ctx context.Context, a *app, live *campaign.ListService, refresh time.Duration) error {
	results, unsubscribe := live.Subscribe()
	defer unsubscribe()

	load := func() {
		a.cache.Invalidate(campaign.RegistryKey, campaign.FeaturedKey)
		a.cache.InvalidatePrefix(campaign.CampaignKey(""))
		if err := live.Load(ctx); err != nil {
			a.logger.Warn("live list load failed", zap.Error(err))
		}
	}
	load()

	var tick <-chan time.Time
	if refresh > 0 {
		ticker := time.NewTicker(refresh)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			load()
		case <-results:
			a.metrics.SetFilterGeneration(live.Generation())
		}
	}
}

func syncLoop(ctx context.Context, a *app, cmd *cobra.Command, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		runner, closeRunner, err := a.newRunner(ctx, cmd, nil)
		if err != nil {
			return err
		}
		result, err := runner.Run(ctx)
		closeRunner()
		a.metrics.RecordSync(result.Synced, result.Failed, result.Actions)
		if err != nil && ctx.Err() == nil {
			a.logger.Error("sync pass failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

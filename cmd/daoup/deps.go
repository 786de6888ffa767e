package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"daoup/internal/campaign"
	"daoup/internal/chain"
	"daoup/internal/config"
	"daoup/internal/metrics"
	"daoup/internal/model"
	"daoup/internal/wallet"
)

// app holds the read side shared by every command.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	metrics  *metrics.Metrics
	client   *chain.Client
	cache    *campaign.Cache
	registry *campaign.Registry
	fetcher  *campaign.Fetcher
	history  *campaign.History
}

// catalog joins the registry and the fetcher into one campaign source.
type catalog struct {
	*campaign.Registry
	*campaign.Fetcher
}

func newApp(cmd *cobra.Command) (*app, context.Context, func(), error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, nil, nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, nil, nil, err
	}

	if cfg.RPCURL == "" {
		return nil, nil, nil, fmt.Errorf("rpc url is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	m := metrics.New(logger)
	client, err := chain.NewClient(ctx, cfg.RPCURL, chain.WithLogger(logger), chain.WithObserver(m))
	if err != nil {
		stop()
		return nil, nil, nil, fmt.Errorf("connect rpc: %w", err)
	}

	cache := campaign.NewCache()
	registry := campaign.NewRegistry(client, cache, cfg.EscrowCodeIDs, cfg.DenyListAddress, cfg.FeaturedListAddress)
	mapper := campaign.Mapper{DAOURLPrefix: cfg.DAOURLPrefix, PayToken: payToken(cfg)}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
		client:   client,
		cache:    cache,
		registry: registry,
		fetcher:  campaign.NewFetcher(client, mapper, cache, registry, logger),
		history:  campaign.NewHistory(client, 0, 0, logger),
	}
	cleanup := func() {
		client.Close()
		stop()
		_ = logger.Sync()
	}
	return a, ctx, cleanup, nil
}

func (a *app) catalog() catalog {
	return catalog{Registry: a.registry, Fetcher: a.fetcher}
}

func payToken(cfg config.Config) model.PayToken {
	return model.PayToken{
		Denom:    cfg.PayTokenDenom,
		Symbol:   cfg.PayTokenSymbol,
		Decimals: cfg.PayTokenDecimals,
	}
}

// session builds a wallet session backed by the key file and connects it.
func (a *app) session(ctx context.Context) (*wallet.Session, *wallet.FileKeystore, error) {
	keystore := wallet.NewFileKeystore(a.cfg.KeyFile, a.cfg.Bech32Prefix, a.logger)
	fee := chain.Fee{Denom: a.cfg.FeeDenom, Amount: a.cfg.FeeAmount, Gas: a.cfg.Gas}
	session := wallet.NewSession(keystore, a.cfg.ChainID, func(signer chain.Signer) (chain.Executor, error) {
		return chain.NewSigningClient(a.client, signer, a.cfg.ChainID, fee, a.cfg.TxTimeout, a.logger), nil
	}, a.logger)

	if err := session.Connect(ctx); err != nil {
		return session, keystore, fmt.Errorf("connect wallet: %s", session.Reason())
	}
	return session, keystore, nil
}

func (a *app) actions(session campaign.WalletSession) *campaign.Actions {
	return campaign.NewActions(session, a.fetcher, campaign.ActionConfig{
		PayToken:          payToken(a.cfg),
		BaseURL:           a.cfg.BaseURL,
		EscrowCodeID:      a.cfg.EscrowCodeID(),
		CW20CodeID:        a.cfg.CW20CodeID,
		FeeManagerAddress: a.cfg.FeeManagerAddress,
		FeeReceiver:       a.cfg.DAOUpDAOAddress,
		Fee:               a.cfg.DAOUpFee,
	}, a.metrics, a.logger)
}

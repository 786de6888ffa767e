package campaign

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"daoup/internal/chain"
	"daoup/internal/model"
)

// ChainReader is the read side of the chain client used by this package.
type ChainReader interface {
	chain.SmartQuerier
	ContractsByCode(ctx context.Context, codeID uint64) ([]string, error)
	TokenInfo(ctx context.Context, token string) (model.TokenInfo, error)
	Balance(ctx context.Context, address, denom string) (model.Coin, error)
}

// Fetcher loads campaigns and balances through the cache.
type Fetcher struct {
	reader   ChainReader
	mapper   Mapper
	cache    *Cache
	registry *Registry
	logger   *zap.Logger
}

// NewFetcher wires a fetcher. A nil cache disables sharing between callers.
func NewFetcher(reader ChainReader, mapper Mapper, cache *Cache, registry *Registry, logger *zap.Logger) *Fetcher {
	if cache == nil {
		cache = NewCache()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		reader:   reader,
		mapper:   mapper,
		cache:    cache,
		registry: registry,
		logger:   logger,
	}
}

// Cache returns the fetcher's cache.
func (f *Fetcher) Cache() *Cache {
	return f.cache
}

// Reader returns the chain reader backing the fetcher.
func (f *Fetcher) Reader() ChainReader {
	return f.reader
}

// DumpState returns the raw dump_state response of a campaign contract.
func (f *Fetcher) DumpState(ctx context.Context, address string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := f.reader.QuerySmart(ctx, address, map[string]struct{}{"dump_state": {}}, &raw); err != nil {
		return nil, fmt.Errorf("query dump_state %s: %w", address, err)
	}
	return raw, nil
}

// Campaign returns the mapped campaign at address, cached until invalidated.
func (f *Fetcher) Campaign(ctx context.Context, address string) (model.Campaign, error) {
	return Load(ctx, f.cache, CampaignKey(address), func(ctx context.Context) (model.Campaign, error) {
		return f.fetch(ctx, address)
	})
}

func (f *Fetcher) fetch(ctx context.Context, address string) (model.Campaign, error) {
	raw, err := f.DumpState(ctx, address)
	if err != nil {
		return model.Campaign{}, err
	}

	var refs struct {
		DAOAddr      string `json:"dao_addr"`
		GovTokenAddr string `json:"gov_token_addr"`
	}
	if err := json.Unmarshal(raw, &refs); err != nil {
		return model.Campaign{}, fmt.Errorf("%w: %v", ErrIncompleteState, err)
	}
	if refs.DAOAddr == "" || refs.GovTokenAddr == "" {
		return model.Campaign{}, fmt.Errorf("%w: missing dao or gov token address", ErrIncompleteState)
	}

	campaignBalance, err := chain.CW20Balance(ctx, f.reader, refs.GovTokenAddr, address)
	if err != nil {
		return model.Campaign{}, err
	}
	daoBalance, err := chain.CW20Balance(ctx, f.reader, refs.GovTokenAddr, refs.DAOAddr)
	if err != nil {
		return model.Campaign{}, err
	}

	var featured []string
	if f.registry != nil {
		featured, err = f.registry.Featured(ctx)
		if err != nil {
			f.logger.Warn("featured list unavailable", zap.Error(err))
			featured = nil
		}
	}

	balances := GovBalances{
		Campaign: model.ToDisplay(campaignBalance),
		DAO:      model.ToDisplay(daoBalance),
	}
	return f.mapper.Map(address, raw, balances, featured)
}

// TokenBalance returns a wallet's cw20 balance in display units.
func (f *Fetcher) TokenBalance(ctx context.Context, wallet, token string) (float64, error) {
	return Load(ctx, f.cache, BalanceKey(wallet, token), func(ctx context.Context) (float64, error) {
		balance, err := chain.CW20Balance(ctx, f.reader, token, wallet)
		if err != nil {
			return 0, err
		}
		return model.ToDisplay(balance), nil
	})
}

// NativeBalance returns a wallet's bank balance of denom in display units.
func (f *Fetcher) NativeBalance(ctx context.Context, wallet, denom string) (float64, error) {
	return Load(ctx, f.cache, BalanceKey(wallet, denom), func(ctx context.Context) (float64, error) {
		coin, err := f.reader.Balance(ctx, wallet, denom)
		if err != nil {
			return 0, fmt.Errorf("query balance %s: %w", wallet, err)
		}
		return model.ToDisplay(coin.Amount), nil
	})
}

// DAOConfig returns the get_config response of a DAO.
func (f *Fetcher) DAOConfig(ctx context.Context, dao string) (chain.DAOConfig, error) {
	return Load(ctx, f.cache, DAOConfigKey(dao), func(ctx context.Context) (chain.DAOConfig, error) {
		return chain.GetDAOConfig(ctx, f.reader, dao)
	})
}

// FeeManagerConfig returns the configuration of a fee manager contract.
func (f *Fetcher) FeeManagerConfig(ctx context.Context, feeManager string) (chain.FeeManagerConfig, error) {
	return Load(ctx, f.cache, FeeManagerConfigKey(feeManager), func(ctx context.Context) (chain.FeeManagerConfig, error) {
		return chain.GetFeeManagerConfig(ctx, f.reader, feeManager)
	})
}

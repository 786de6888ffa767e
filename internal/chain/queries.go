package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"daoup/internal/model"
)

// SmartQuerier runs CosmWasm smart queries.
type SmartQuerier interface {
	QuerySmart(ctx context.Context, contract string, query interface{}, out interface{}) error
}

// CW20Balance returns the cw20 balance of address in micro-units.
func CW20Balance(ctx context.Context, q SmartQuerier, token, address string) (string, error) {
	var resp struct {
		Balance string `json:"balance"`
	}
	query := map[string]interface{}{"balance": map[string]string{"address": address}}
	if err := q.QuerySmart(ctx, token, query, &resp); err != nil {
		return "", fmt.Errorf("query cw20 balance %s: %w", token, err)
	}
	if resp.Balance == "" {
		return "0", nil
	}
	return resp.Balance, nil
}

// TokenInfo returns cw20 token metadata, using an in-memory cache.
func (c *Client) TokenInfo(ctx context.Context, token string) (model.TokenInfo, error) {
	c.tokenMu.RLock()
	info, ok := c.tokenCache[token]
	c.tokenMu.RUnlock()
	if ok {
		return info, nil
	}

	if err := c.QuerySmart(ctx, token, map[string]struct{}{"token_info": {}}, &info); err != nil {
		return model.TokenInfo{}, fmt.Errorf("query token info %s: %w", token, err)
	}

	c.tokenMu.Lock()
	c.tokenCache[token] = info
	c.tokenMu.Unlock()
	return info, nil
}

// ListMembers returns the addresses stored in an address priority list contract.
func ListMembers(ctx context.Context, q SmartQuerier, list string) ([]string, error) {
	var resp struct {
		Members []struct {
			Addr     string `json:"addr"`
			Priority uint32 `json:"priority"`
		} `json:"members"`
	}
	if err := q.QuerySmart(ctx, list, map[string]struct{}{"list_members": {}}, &resp); err != nil {
		return nil, fmt.Errorf("query list members %s: %w", list, err)
	}
	out := make([]string, 0, len(resp.Members))
	for _, member := range resp.Members {
		out = append(out, member.Addr)
	}
	return out, nil
}

// DAOConfig is the get_config response of a DAO core contract.
type DAOConfig struct {
	Config *struct {
		Name            string `json:"name"`
		Description     string `json:"description"`
		ProposalDeposit string `json:"proposal_deposit"`
	} `json:"config"`
	GovToken          string          `json:"gov_token"`
	StakingContract   string          `json:"staking_contract"`
	UnstakingDuration json.RawMessage `json:"unstaking_duration,omitempty"`
}

// ErrNotDAO means an address answered get_config but is not a DAO core contract.
var ErrNotDAO = errors.New("address is not a DAO")

// GetDAOConfig queries get_config on a DAO.
func GetDAOConfig(ctx context.Context, q SmartQuerier, dao string) (DAOConfig, error) {
	var cfg DAOConfig
	if err := q.QuerySmart(ctx, dao, map[string]struct{}{"get_config": {}}, &cfg); err != nil {
		return DAOConfig{}, fmt.Errorf("query dao config %s: %w", dao, err)
	}
	return cfg, nil
}

// Validate checks that the config came from a DAO core contract.
func (c DAOConfig) Validate() error {
	if c.Config != nil && c.GovToken != "" && c.StakingContract != "" {
		return nil
	}
	if len(c.UnstakingDuration) > 0 {
		return fmt.Errorf("%w: looks like a staked token contract", ErrNotDAO)
	}
	return ErrNotDAO
}

// FeeManagerConfig is the get_config response of the platform fee manager.
type FeeManagerConfig struct {
	ReceiverAddr     string     `json:"receiver_addr"`
	Fee              string     `json:"fee"`
	PublicListingFee model.Coin `json:"public_listing_fee"`
}

// GetFeeManagerConfig queries get_config on the fee manager.
func GetFeeManagerConfig(ctx context.Context, q SmartQuerier, feeManager string) (FeeManagerConfig, error) {
	var resp struct {
		Config FeeManagerConfig `json:"config"`
	}
	if err := q.QuerySmart(ctx, feeManager, map[string]struct{}{"get_config": {}}, &resp); err != nil {
		return FeeManagerConfig{}, fmt.Errorf("query fee manager config %s: %w", feeManager, err)
	}
	return resp.Config, nil
}

package campaign

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"daoup/internal/model"
)

// WalletCampaigns splits the campaigns a wallet relates to.
type WalletCampaigns struct {
	Creator     []model.Campaign `json:"creator_campaigns"`
	Contributor []model.Campaign `json:"contributor_campaigns"`
}

// BalanceReader reads a wallet's cw20 balance in display units.
type BalanceReader interface {
	TokenBalance(ctx context.Context, wallet, token string) (float64, error)
}

// ForWallet returns the campaigns created by wallet and the ones it holds funding
// tokens of. Balance failures drop the campaign from the contributor list.
func ForWallet(ctx context.Context, balances BalanceReader, campaigns []model.Campaign, wallet string, concurrency int, logger *zap.Logger) WalletCampaigns {
	if logger == nil {
		logger = zap.NewNop()
	}
	if concurrency <= 0 {
		concurrency = 8
	}
	out := WalletCampaigns{
		Creator:     []model.Campaign{},
		Contributor: []model.Campaign{},
	}

	holds := make([]bool, len(campaigns))
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, c := range campaigns {
		if c.Creator == wallet {
			continue
		}
		i, c := i, c
		g.Go(func() error {
			balance, err := balances.TokenBalance(ctx, wallet, c.FundingToken.Address)
			if err != nil {
				logger.Warn("funding token balance failed",
					zap.String("campaign", c.Address), zap.String("wallet", wallet), zap.Error(err))
				return nil
			}
			mu.Lock()
			holds[i] = balance > 0
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for i, c := range campaigns {
		switch {
		case c.Creator == wallet:
			out.Creator = append(out.Creator, c)
		case holds[i]:
			out.Contributor = append(out.Contributor, c)
		}
	}
	return out
}

package campaign

import (
	"context"
	"errors"
	"testing"

	"daoup/internal/model"
)

type balanceTable map[string]float64

func (b balanceTable) TokenBalance(ctx context.Context, wallet, token string) (float64, error) {
	balance, ok := b[token]
	if !ok {
		return 0, errors.New("token not found")
	}
	return balance, nil
}

func TestForWallet(t *testing.T) {
	campaigns := []model.Campaign{
		{Address: "mine", Creator: testWallet, FundingToken: model.Token{Address: "t1"}},
		{Address: "backed", Creator: testCreator, FundingToken: model.Token{Address: "t2"}},
		{Address: "refunded", Creator: testCreator, FundingToken: model.Token{Address: "t3"}},
		{Address: "broken", Creator: testCreator, FundingToken: model.Token{Address: "t4"}},
	}
	balances := balanceTable{"t1": 5, "t2": 0.5, "t3": 0}

	got := ForWallet(context.Background(), balances, campaigns, testWallet, 2, nil)
	if len(got.Creator) != 1 || got.Creator[0].Address != "mine" {
		t.Fatalf("creator = %v", addresses(got.Creator))
	}
	if len(got.Contributor) != 1 || got.Contributor[0].Address != "backed" {
		t.Fatalf("contributor = %v", addresses(got.Contributor))
	}
}

package campaign

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"daoup/internal/model"
)

// ErrIncompleteState means a dump_state response lacks fields needed for a campaign.
var ErrIncompleteState = errors.New("incomplete campaign state")

var requiredStateKeys = []string{
	"campaign_info",
	"funding_token_info",
	"gov_token_info",
	"status",
	"funding_goal",
	"funds_raised",
	"dao_addr",
	"creator",
	"gov_token_addr",
	"funding_token_addr",
}

// GovBalances are the governance token balances held by the campaign and its DAO,
// in display units.
type GovBalances struct {
	Campaign float64
	DAO      float64
}

// Mapper turns dump_state responses into campaign view models.
type Mapper struct {
	DAOURLPrefix string
	PayToken     model.PayToken
}

// Map converts a raw dump_state response. It is all-or-nothing: any missing or
// malformed field fails the whole campaign.
func (m Mapper) Map(address string, raw json.RawMessage, balances GovBalances, featured []string) (model.Campaign, error) {
	state, err := decodeState(raw)
	if err != nil {
		return model.Campaign{}, err
	}

	status, err := DecodeStatus(state.Status)
	if err != nil {
		return model.Campaign{}, err
	}

	info := state.CampaignInfo
	goal := model.ToDisplay(state.FundingGoal.Amount)

	fundingToken := model.Token{
		Address: state.FundingTokenAddr,
		Name:    state.FundingTokenInfo.Name,
		Symbol:  state.FundingTokenInfo.Symbol,
	}
	if status.Status.HasTokenPrice() {
		if status.TokenPrice == "" {
			return model.Campaign{}, fmt.Errorf("%w: %s status without token_price", ErrIncompleteState, status.Status)
		}
		price := model.ToDisplay(status.TokenPrice)
		supply := goal * price
		fundingToken.Price = &price
		fundingToken.Supply = &supply
	}

	govSupply := model.ToDisplay(state.GovTokenInfo.TotalSupply)
	campaignBalance := balances.Campaign
	daoBalance := balances.DAO

	payToken := m.PayToken
	if payToken.Denom == "" {
		payToken.Denom = state.FundingGoal.Denom
	}

	descriptionImages := info.DescriptionImageURLs
	if descriptionImages == nil {
		descriptionImages = []string{}
	}

	return model.Campaign{
		Version:              state.Version,
		Address:              address,
		Name:                 info.Name,
		Description:          info.Description,
		URLPath:              "/campaign/" + address,
		ImageURL:             info.ImageURL,
		ProfileImageURL:      info.ProfileImageURL,
		DescriptionImageURLs: descriptionImages,

		Status:   status.Status,
		Creator:  state.Creator,
		Hidden:   info.Hidden,
		Featured: contains(featured, address),

		PayToken: payToken,
		Goal:     goal,
		Pledged:  model.ToDisplay(state.FundsRaised.Amount),

		DAO: model.DAO{
			Address: state.DAOAddr,
			URL:     m.DAOURLPrefix + state.DAOAddr,
		},
		GovToken: model.Token{
			Address:         state.GovTokenAddr,
			Name:            state.GovTokenInfo.Name,
			Symbol:          state.GovTokenInfo.Symbol,
			Supply:          &govSupply,
			CampaignBalance: &campaignBalance,
			DAOBalance:      &daoBalance,
		},
		FundingToken: fundingToken,

		FeeManagerAddress: state.FeeManagerAddr,

		Website: info.Website,
		Twitter: info.Twitter,
		Discord: info.Discord,
	}, nil
}

func decodeState(raw json.RawMessage) (model.DumpState, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return model.DumpState{}, fmt.Errorf("%w: %v", ErrIncompleteState, err)
	}
	for _, key := range requiredStateKeys {
		value, ok := fields[key]
		if !ok || bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
			return model.DumpState{}, fmt.Errorf("%w: missing %s", ErrIncompleteState, key)
		}
	}

	var state model.DumpState
	if err := json.Unmarshal(raw, &state); err != nil {
		return model.DumpState{}, fmt.Errorf("decode dump_state: %w", err)
	}
	return state, nil
}

func contains(items []string, item string) bool {
	for _, candidate := range items {
		if candidate == item {
			return true
		}
	}
	return false
}

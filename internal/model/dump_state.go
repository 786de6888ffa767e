package model

import "encoding/json"

// DumpState is the raw response of a campaign contract's dump_state query.
type DumpState struct {
	Version          string          `json:"version,omitempty"`
	Status           json.RawMessage `json:"status"`
	DAOAddr          string          `json:"dao_addr"`
	Creator          string          `json:"creator"`
	FeeManagerAddr   *string         `json:"fee_manager_addr,omitempty"`
	FundingGoal      Coin            `json:"funding_goal"`
	FundsRaised      Coin            `json:"funds_raised"`
	FundingTokenInfo *TokenInfo      `json:"funding_token_info"`
	GovTokenInfo     *TokenInfo      `json:"gov_token_info"`
	CampaignInfo     *CampaignInfo   `json:"campaign_info"`
	GovTokenAddr     string          `json:"gov_token_addr"`
	FundingTokenAddr string          `json:"funding_token_addr"`
}

// CampaignInfo is the presentation metadata stored on the campaign contract.
type CampaignInfo struct {
	Name                 string   `json:"name"`
	Description          string   `json:"description"`
	Hidden               bool     `json:"hidden"`
	ImageURL             *string  `json:"image_url,omitempty"`
	ProfileImageURL      *string  `json:"profile_image_url,omitempty"`
	DescriptionImageURLs []string `json:"description_image_urls,omitempty"`
	Website              *string  `json:"website,omitempty"`
	Twitter              *string  `json:"twitter,omitempty"`
	Discord              *string  `json:"discord,omitempty"`
}

// TokenInfo is the cw20 token_info response.
type TokenInfo struct {
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Decimals    int    `json:"decimals"`
	TotalSupply string `json:"total_supply"`
}

// Coin is an amount of a native denomination, amount in micro-units.
type Coin struct {
	Denom  string `json:"denom"`
	Amount string `json:"amount"`
}

package model

// Campaign is the normalized view model derived from a campaign contract's dumped state.
type Campaign struct {
	Version              string   `json:"version"`
	Address              string   `json:"address"`
	Name                 string   `json:"name"`
	Description          string   `json:"description"`
	URLPath              string   `json:"url_path"`
	ImageURL             *string  `json:"image_url,omitempty"`
	ProfileImageURL      *string  `json:"profile_image_url,omitempty"`
	DescriptionImageURLs []string `json:"description_image_urls"`

	Status   Status `json:"status"`
	Creator  string `json:"creator"`
	Hidden   bool   `json:"hidden"`
	Featured bool   `json:"featured"`

	PayToken PayToken `json:"pay_token"`
	Goal     float64  `json:"goal"`
	Pledged  float64  `json:"pledged"`

	DAO          DAO   `json:"dao"`
	GovToken     Token `json:"gov_token"`
	FundingToken Token `json:"funding_token"`

	FeeManagerAddress *string `json:"fee_manager_address,omitempty"`

	Website *string `json:"website,omitempty"`
	Twitter *string `json:"twitter,omitempty"`
	Discord *string `json:"discord,omitempty"`
}

// DAO identifies the DAO that receives a successful campaign's treasury.
type DAO struct {
	Address string `json:"address"`
	URL     string `json:"url"`
}

// Token describes either the funding receipt token or the DAO governance token.
type Token struct {
	Address         string   `json:"address"`
	Name            string   `json:"name"`
	Symbol          string   `json:"symbol"`
	Supply          *float64 `json:"supply,omitempty"`
	Price           *float64 `json:"price,omitempty"`
	CampaignBalance *float64 `json:"campaign_balance,omitempty"`
	DAOBalance      *float64 `json:"dao_balance,omitempty"`
}

// PayToken is the native denomination contributions are made in.
type PayToken struct {
	Denom    string `json:"denom"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// PercentFunded returns pledged/goal as a percentage clamped to 100.
func (c Campaign) PercentFunded() float64 {
	if c.Goal <= 0 {
		return 0
	}
	pct := c.Pledged / c.Goal * 100
	if pct > 100 {
		return 100
	}
	return pct
}

// CampaignSnapshot is a campaign captured at a point in time for storage.
type CampaignSnapshot struct {
	Campaign
	SyncedAt string `json:"synced_at"`
}

package model

import "time"

// ActionType distinguishes contributions from refunds.
type ActionType string

const (
	ActionFund   ActionType = "fund"
	ActionRefund ActionType = "refund"
)

// Action is a single funding or refund event on a campaign. Amount is in display units.
type Action struct {
	Type    ActionType `json:"type"`
	Address string     `json:"address"`
	Amount  float64    `json:"amount"`
	When    *time.Time `json:"when,omitempty"`
}

// ActionRecord is an action enriched with its chain location for storage.
type ActionRecord struct {
	Campaign  string     `json:"campaign"`
	TxHash    string     `json:"tx_hash"`
	Height    int64      `json:"height"`
	MsgIndex  int        `json:"msg_index"`
	Type      ActionType `json:"type"`
	Address   string     `json:"address"`
	Amount    string     `json:"amount"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// CumulativeTotals converts newest-first actions into a chronological running total
// that starts at zero. Refunds subtract.
func CumulativeTotals(actions []Action) []float64 {
	totals := make([]float64, 0, len(actions)+1)
	totals = append(totals, 0)

	var sum float64
	for i := len(actions) - 1; i >= 0; i-- {
		amount := actions[i].Amount
		if actions[i].Type == ActionRefund {
			amount = -amount
		}
		sum += amount
		totals = append(totals, sum)
	}
	return totals
}

package campaign

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"daoup/internal/chain"
	"daoup/internal/model"
)

const defaultHistoryPageSize = 50

// TxSearcher finds committed transactions and their block times.
type TxSearcher interface {
	SearchTxs(ctx context.Context, query string, page, perPage int) (chain.TxSearchPage, error)
	BlockTime(ctx context.Context, height int64) (time.Time, error)
}

// History reads fund and refund actions of campaigns from indexed transactions.
type History struct {
	searcher TxSearcher
	pageSize int
	maxPages int
	logger   *zap.Logger
}

// NewHistory creates a history reader. maxPages <= 0 reads every page.
func NewHistory(searcher TxSearcher, pageSize, maxPages int, logger *zap.Logger) *History {
	if pageSize <= 0 {
		pageSize = defaultHistoryPageSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &History{
		searcher: searcher,
		pageSize: pageSize,
		maxPages: maxPages,
		logger:   logger,
	}
}

// Records returns the campaign's actions newest first, with chain locations.
func (h *History) Records(ctx context.Context, campaign string) ([]model.ActionRecord, error) {
	query := fmt.Sprintf("wasm._contract_address='%s'", campaign)

	var out []model.ActionRecord
	for page := 1; h.maxPages <= 0 || page <= h.maxPages; page++ {
		result, err := h.searcher.SearchTxs(ctx, query, page, h.pageSize)
		if err != nil {
			if chain.CodeOf(err) == chain.CodeTxPageOutOfRange {
				break
			}
			return nil, fmt.Errorf("search txs for %s: %w", campaign, err)
		}

		for _, tx := range result.Txs {
			if tx.Code != 0 {
				continue
			}
			records := ParseActions(campaign, tx)
			if len(records) == 0 {
				continue
			}
			when, err := h.searcher.BlockTime(ctx, tx.Height)
			if err != nil {
				h.logger.Warn("block time unavailable", zap.Int64("height", tx.Height), zap.Error(err))
			} else {
				for i := range records {
					t := when
					records[i].Timestamp = &t
				}
			}
			// Invocations within a tx run in order; newest first reverses them.
			for i := len(records) - 1; i >= 0; i-- {
				out = append(out, records[i])
			}
		}

		if len(result.Txs) < h.pageSize || page*h.pageSize >= result.TotalCount {
			break
		}
	}
	return out, nil
}

// Actions returns the campaign's actions newest first in display units.
func (h *History) Actions(ctx context.Context, campaign string) ([]model.Action, error) {
	records, err := h.Records(ctx, campaign)
	if err != nil {
		return nil, err
	}
	return ToActions(records), nil
}

// ParseActions extracts the fund and refund invocations of campaign from a tx.
func ParseActions(campaign string, tx chain.TxResult) []model.ActionRecord {
	var out []model.ActionRecord
	for i, ev := range chain.WasmActions(tx.Events) {
		contract, _ := ev.Attribute("_contract_address")
		if contract != campaign {
			continue
		}
		action, _ := ev.Attribute("action")
		sender, _ := ev.Attribute("sender")

		var (
			kind   model.ActionType
			amount string
		)
		switch action {
		case string(model.ActionFund):
			kind = model.ActionFund
			amount, _ = ev.Attribute("amount")
		case string(model.ActionRefund):
			kind = model.ActionRefund
			amount, _ = ev.Attribute("native_returned")
		default:
			continue
		}

		out = append(out, model.ActionRecord{
			Campaign: campaign,
			TxHash:   tx.Hash,
			Height:   tx.Height,
			MsgIndex: i,
			Type:     kind,
			Address:  sender,
			Amount:   microAmount(amount),
		})
	}
	return out
}

// microAmount strips a coin denom suffix such as "1500ujuno".
func microAmount(value string) string {
	value = strings.TrimSpace(value)
	end := 0
	for end < len(value) && value[end] >= '0' && value[end] <= '9' {
		end++
	}
	if end == 0 {
		return "0"
	}
	return value[:end]
}

// ToActions converts stored records into display actions.
func ToActions(records []model.ActionRecord) []model.Action {
	out := make([]model.Action, 0, len(records))
	for _, r := range records {
		out = append(out, model.Action{
			Type:    r.Type,
			Address: r.Address,
			Amount:  model.ToDisplay(r.Amount),
			When:    r.Timestamp,
		})
	}
	return out
}

// Stats summarizes a campaign's actions.
type Stats struct {
	Backers      int        `json:"backers"`
	Funds        int        `json:"funds"`
	Refunds      int        `json:"refunds"`
	NetPledged   float64    `json:"net_pledged"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
}

// Summarize computes stats over newest-first actions. A backer is an address whose
// contributions exceed its refunds.
func Summarize(actions []model.Action) Stats {
	var stats Stats
	net := make(map[string]float64)
	for _, a := range actions {
		switch a.Type {
		case model.ActionFund:
			stats.Funds++
			stats.NetPledged += a.Amount
			net[a.Address] += a.Amount
		case model.ActionRefund:
			stats.Refunds++
			stats.NetPledged -= a.Amount
			net[a.Address] -= a.Amount
		}
		if a.When != nil && (stats.LastActivity == nil || a.When.After(*stats.LastActivity)) {
			t := *a.When
			stats.LastActivity = &t
		}
	}
	for _, amount := range net {
		if amount > 0 {
			stats.Backers++
		}
	}
	return stats
}

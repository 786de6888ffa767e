package campaign

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"daoup/internal/chain"
	"daoup/internal/model"
)

// Precondition messages shown when a hook cannot start.
const (
	MsgNoSigningClient    = "Failed to get signing client."
	MsgWalletNotConnected = "Wallet not connected."
	MsgCampaignNotLoaded  = "Campaign is not loaded."
	MsgBalanceUnknown     = "Could not check balance."
	MsgDAONotFound        = "DAO could not be found."
	MsgConfigNotLoaded    = "Config not loaded."
	MsgStakeToPropose     = "Unauthorized. You must stake tokens in the DAO on DAO DAO before you can create a proposal."
)

var proposalOverrides = map[chain.Code]string{
	chain.CodeUnauthorized: MsgStakeToPropose,
}

// WalletSession exposes the connected account.
type WalletSession interface {
	Executor() (chain.Executor, bool)
	Address() (string, bool)
}

// Monitor observes hook outcomes and receives unexpected errors.
type Monitor interface {
	ObserveAction(action, outcome string)
	Report(source string, err error)
}

type nopMonitor struct{}

func (nopMonitor) ObserveAction(string, string) {}
func (nopMonitor) Report(string, error)         {}

// ActionConfig holds deployment constants used by the hooks.
type ActionConfig struct {
	PayToken          model.PayToken
	BaseURL           string
	EscrowCodeID      uint64
	CW20CodeID        uint64
	FeeManagerAddress string
	FeeReceiver       string
	Fee               string
}

// Actions builds the state-changing hooks for campaigns.
type Actions struct {
	session WalletSession
	fetcher *Fetcher
	cfg     ActionConfig
	monitor Monitor
	logger  *zap.Logger
}

// NewActions wires the hooks to a wallet session and fetcher.
func NewActions(session WalletSession, fetcher *Fetcher, cfg ActionConfig, monitor Monitor, logger *zap.Logger) *Actions {
	if monitor == nil {
		monitor = nopMonitor{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Actions{
		session: session,
		fetcher: fetcher,
		cfg:     cfg,
		monitor: monitor,
		logger:  logger,
	}
}

// ActionError is a failure stored in a hook's error slot.
type ActionError struct {
	Code    chain.Code
	Message string
	Err     error
}

func (e *ActionError) Error() string {
	return e.Message
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// hook carries the error slot shared by every action.
type hook struct {
	name    string
	actions *Actions

	mu  sync.Mutex
	err *ActionError
}

// Err returns the message of the last failure, empty after a success.
func (h *hook) Err() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err == nil {
		return ""
	}
	return h.err.Message
}

// LastError returns the last failure.
func (h *hook) LastError() *ActionError {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *hook) clear() {
	h.mu.Lock()
	h.err = nil
	h.mu.Unlock()
}

func (h *hook) fail(code chain.Code, message string, err error) bool {
	h.mu.Lock()
	h.err = &ActionError{Code: code, Message: message, Err: err}
	h.mu.Unlock()
	h.actions.monitor.ObserveAction(h.name, "precondition")
	return false
}

func (h *hook) failCall(err error, overrides map[chain.Code]string, fields ...zap.Field) bool {
	code := chain.Classify(err)
	message := chain.Message(err, overrides)

	h.mu.Lock()
	h.err = &ActionError{Code: code, Message: message, Err: err}
	h.mu.Unlock()

	h.actions.logger.Warn("action failed",
		append(fields, zap.String("action", h.name), zap.String("code", code.String()), zap.Error(err))...)
	h.actions.monitor.ObserveAction(h.name, "error")
	if code.Reportable() {
		h.actions.monitor.Report(h.name, err)
	}
	return false
}

func (h *hook) succeed() {
	h.actions.monitor.ObserveAction(h.name, "success")
}

// preconditions checks signing client, wallet, and campaign in that order.
func (h *hook) preconditions(c *model.Campaign, needCampaign bool) (chain.Executor, string, bool) {
	executor, ok := h.actions.session.Executor()
	if !ok || executor == nil {
		return nil, "", h.fail(chain.CodeGetClientFailed, MsgNoSigningClient, nil)
	}
	wallet, ok := h.actions.session.Address()
	if !ok || wallet == "" {
		return nil, "", h.fail(chain.CodeUnknown, MsgWalletNotConnected, nil)
	}
	if needCampaign && c == nil {
		return nil, "", h.fail(chain.CodeUnknown, MsgCampaignNotLoaded, nil)
	}
	return executor, wallet, true
}

func (a *Actions) refresh(c *model.Campaign, wallet string) {
	keys := []string{
		CampaignKey(c.Address),
		BalanceKey(wallet, c.FundingToken.Address),
		BalanceKey(wallet, c.GovToken.Address),
	}
	if c.PayToken.Denom != "" {
		keys = append(keys, BalanceKey(wallet, c.PayToken.Denom))
	}
	a.fetcher.Cache().Invalidate(keys...)
}

// ContributeHook funds an open campaign.
type ContributeHook struct{ hook }

// Contribute returns a new contribute hook.
func (a *Actions) Contribute() *ContributeHook {
	return &ContributeHook{hook{name: "contribute", actions: a}}
}

// Run sends amount, in display units of the pay token, to the campaign.
func (h *ContributeHook) Run(ctx context.Context, c *model.Campaign, amount float64) bool {
	h.clear()
	executor, wallet, ok := h.preconditions(c, true)
	if !ok {
		return false
	}

	denom := c.PayToken.Denom
	if denom == "" {
		denom = h.actions.cfg.PayToken.Denom
	}
	balance, err := h.actions.fetcher.NativeBalance(ctx, wallet, denom)
	if err != nil {
		h.actions.logger.Warn("balance check failed", zap.String("wallet", wallet), zap.Error(err))
		return h.fail(chain.CodeUnknown, MsgBalanceUnknown, err)
	}
	if amount > balance {
		return h.fail(chain.CodeInsufficientFunds, chain.CodeInsufficientFunds.Message(), nil)
	}

	funds := []model.Coin{{Denom: denom, Amount: model.MicroString(amount)}}
	msg := map[string]struct{}{"fund": {}}
	if _, err := executor.Execute(ctx, c.Address, msg, funds); err != nil {
		return h.failCall(err, nil, zap.String("campaign", c.Address), zap.String("wallet", wallet), zap.Float64("amount", amount))
	}

	h.actions.refresh(c, wallet)
	h.succeed()
	return true
}

// RefundHook returns funding tokens for pay tokens while a campaign is open.
type RefundHook struct{ hook }

// Refund returns a new refund hook.
func (a *Actions) Refund() *RefundHook {
	return &RefundHook{hook{name: "refund", actions: a}}
}

// Run sends amount funding tokens back to the campaign.
func (h *RefundHook) Run(ctx context.Context, c *model.Campaign, amount float64) bool {
	h.clear()
	executor, wallet, ok := h.preconditions(c, true)
	if !ok {
		return false
	}

	msg := map[string]interface{}{
		"send": map[string]string{
			"contract": c.Address,
			"amount":   model.MicroString(amount),
			"msg":      "",
		},
	}
	if _, err := executor.Execute(ctx, c.FundingToken.Address, msg, nil); err != nil {
		return h.failCall(err, nil, zap.String("campaign", c.Address), zap.String("wallet", wallet), zap.Float64("amount", amount))
	}

	h.actions.refresh(c, wallet)
	h.succeed()
	return true
}

type cosmosMsg struct {
	Wasm wasmMsg `json:"wasm"`
}

type wasmMsg struct {
	Execute wasmExecute `json:"execute"`
}

type wasmExecute struct {
	ContractAddr string       `json:"contract_addr"`
	Msg          string       `json:"msg"`
	Funds        []model.Coin `json:"funds"`
}

type proposeMsg struct {
	Propose proposal `json:"propose"`
}

type proposal struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Msgs        []cosmosMsg `json:"msgs"`
}

func wasmExecuteMsg(contract string, msg interface{}, funds []model.Coin) (cosmosMsg, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return cosmosMsg{}, fmt.Errorf("encode proposal msg: %w", err)
	}
	if funds == nil {
		funds = []model.Coin{}
	}
	return cosmosMsg{Wasm: wasmMsg{Execute: wasmExecute{
		ContractAddr: contract,
		Msg:          base64.StdEncoding.EncodeToString(data),
		Funds:        funds,
	}}}, nil
}

// propose submits a DAO proposal, first allowing the DAO to take the proposal
// deposit when it has one. Both messages go in one transaction.
func (a *Actions) propose(ctx context.Context, executor chain.Executor, c *model.Campaign, dao chain.DAOConfig, p proposal) (string, error) {
	var msgs []chain.ExecuteMsg
	if deposit := dao.Config.ProposalDeposit; depositPositive(deposit) {
		msgs = append(msgs, chain.ExecuteMsg{
			Contract: c.GovToken.Address,
			Msg: map[string]interface{}{
				"increase_allowance": map[string]string{
					"amount":  deposit,
					"spender": c.DAO.Address,
				},
			},
		})
	}
	msgs = append(msgs, chain.ExecuteMsg{Contract: c.DAO.Address, Msg: proposeMsg{Propose: p}})

	tx, err := executor.ExecuteBatch(ctx, msgs)
	if err != nil {
		return "", err
	}
	proposalID, _ := chain.FindAttribute(tx.Events, "wasm", "proposal_id")
	return proposalID, nil
}

func depositPositive(deposit string) bool {
	value, err := strconv.ParseFloat(strings.TrimSpace(deposit), 64)
	return err == nil && value > 0
}

func (h *hook) daoConfig(ctx context.Context, c *model.Campaign) (chain.DAOConfig, bool) {
	dao, err := h.actions.fetcher.DAOConfig(ctx, c.DAO.Address)
	if err != nil || dao.Config == nil {
		h.actions.logger.Warn("dao config unavailable", zap.String("dao", c.DAO.Address), zap.Error(err))
		return chain.DAOConfig{}, h.fail(chain.CodeNotFound, MsgDAONotFound, err)
	}
	return dao, true
}

// ProposeFundHook asks the DAO to send governance tokens to a pending campaign.
type ProposeFundHook struct{ hook }

// ProposeFund returns a new propose-fund hook.
func (a *Actions) ProposeFund() *ProposeFundHook {
	return &ProposeFundHook{hook{name: "propose_fund", actions: a}}
}

// Run creates the proposal and returns its id.
func (h *ProposeFundHook) Run(ctx context.Context, c *model.Campaign, amount float64) (string, bool) {
	h.clear()
	executor, wallet, ok := h.preconditions(c, true)
	if !ok {
		return "", false
	}
	dao, ok := h.daoConfig(ctx, c)
	if !ok {
		return "", false
	}

	send := map[string]interface{}{
		"send": map[string]string{
			"contract": c.Address,
			"amount":   model.MicroString(amount),
			"msg":      "",
		},
	}
	msg, err := wasmExecuteMsg(c.GovToken.Address, send, nil)
	if err != nil {
		return "", h.failCall(err, nil)
	}
	p := proposal{
		Title: "Activate DAO Up! campaign",
		Description: fmt.Sprintf("Send %s %s to the [%s](%s) campaign on DAO Up! in order to launch it.",
			model.FormatAmount(amount), c.GovToken.Symbol, c.Name, h.actions.cfg.BaseURL+c.URLPath),
		Msgs: []cosmosMsg{msg},
	}

	proposalID, err := h.actions.propose(ctx, executor, c, dao, p)
	if err != nil {
		return "", h.failCall(err, proposalOverrides, zap.String("campaign", c.Address), zap.String("wallet", wallet))
	}

	h.actions.refresh(c, wallet)
	h.succeed()
	return proposalID, true
}

// UpdateInfo is the editable campaign metadata.
type UpdateInfo struct {
	Name                 string
	Description          string
	Hidden               bool
	Website              string
	Twitter              string
	Discord              string
	ProfileImageURL      string
	DescriptionImageURLs []string
}

// UpdateInfoFrom prefills UpdateInfo from a loaded campaign.
func UpdateInfoFrom(c model.Campaign) UpdateInfo {
	deref := func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	}
	return UpdateInfo{
		Name:                 c.Name,
		Description:          c.Description,
		Hidden:               c.Hidden,
		Website:              deref(c.Website),
		Twitter:              deref(c.Twitter),
		Discord:              deref(c.Discord),
		ProfileImageURL:      deref(c.ProfileImageURL),
		DescriptionImageURLs: append([]string{}, c.DescriptionImageURLs...),
	}
}

func (u UpdateInfo) campaignMsg() map[string]interface{} {
	images := u.DescriptionImageURLs
	if images == nil {
		images = []string{}
	}
	out := map[string]interface{}{
		"name":                   u.Name,
		"description":            u.Description,
		"hidden":                 u.Hidden,
		"description_image_urls": images,
	}
	optional := map[string]string{
		"website":           u.Website,
		"twitter":           u.Twitter,
		"discord":           u.Discord,
		"profile_image_url": u.ProfileImageURL,
	}
	for key, value := range optional {
		if value != "" {
			out[key] = value
		}
	}
	return out
}

// UpdateHook proposes new campaign metadata through the DAO.
type UpdateHook struct{ hook }

// Update returns a new update hook.
func (a *Actions) Update() *UpdateHook {
	return &UpdateHook{hook{name: "update", actions: a}}
}

// Run creates the update proposal and returns its id.
func (h *UpdateHook) Run(ctx context.Context, c *model.Campaign, info UpdateInfo) (string, bool) {
	h.clear()
	executor, wallet, ok := h.preconditions(c, true)
	if !ok {
		return "", false
	}
	dao, ok := h.daoConfig(ctx, c)
	if !ok {
		return "", false
	}

	feeManager := h.actions.cfg.FeeManagerAddress
	if c.FeeManagerAddress != nil && *c.FeeManagerAddress != "" {
		feeManager = *c.FeeManagerAddress
	}
	if feeManager == "" {
		return "", h.fail(chain.CodeUnknown, MsgConfigNotLoaded, nil)
	}
	feeConfig, err := h.actions.fetcher.FeeManagerConfig(ctx, feeManager)
	if err != nil {
		h.actions.logger.Warn("fee manager config unavailable", zap.Error(err))
		return "", h.fail(chain.CodeUnknown, MsgConfigNotLoaded, err)
	}

	var funds []model.Coin
	listingFee := feeConfig.PublicListingFee
	if !info.Hidden && c.Hidden && c.FeeManagerAddress != nil && listingFee.Amount != "" && listingFee.Amount != "0" {
		funds = []model.Coin{listingFee}
	}

	update := map[string]interface{}{
		"update_campaign": map[string]interface{}{"campaign": info.campaignMsg()},
	}
	msg, err := wasmExecuteMsg(c.Address, update, funds)
	if err != nil {
		return "", h.failCall(err, nil)
	}
	p := proposal{
		Title:       "Update DAO Up! campaign",
		Description: fmt.Sprintf("Update properties of the [%s](%s) campaign on DAO Up!", c.Name, h.actions.cfg.BaseURL+c.URLPath),
		Msgs:        []cosmosMsg{msg},
	}

	proposalID, err := h.actions.propose(ctx, executor, c, dao, p)
	if err != nil {
		return "", h.failCall(err, proposalOverrides, zap.String("campaign", c.Address), zap.String("wallet", wallet))
	}

	h.actions.refresh(c, wallet)
	h.succeed()
	return proposalID, true
}

// NewCampaign is the input for creating a campaign.
type NewCampaign struct {
	DAOAddress  string
	Name        string
	Description string
	Goal        float64
	TokenName   string
	TokenSymbol string
	Hidden      bool
	ImageURL    string
	Website     string
	Twitter     string
	Discord     string
}

// InvalidDAOMessage is shown when the DAO address does not point at a DAO.
const InvalidDAOMessage = "DAO cannot be found. Ensure you are providing a DAO address (not a token or wallet address) that exists on the chain."

// CreateHook instantiates a new campaign contract.
type CreateHook struct{ hook }

// Create returns a new create hook.
func (a *Actions) Create() *CreateHook {
	return &CreateHook{hook{name: "create", actions: a}}
}

// Run instantiates the campaign and returns its contract address.
func (h *CreateHook) Run(ctx context.Context, n NewCampaign) (string, bool) {
	h.clear()
	executor, wallet, ok := h.preconditions(nil, false)
	if !ok {
		return "", false
	}

	dao, err := h.actions.fetcher.DAOConfig(ctx, n.DAOAddress)
	if err == nil {
		err = dao.Validate()
	}
	if err != nil {
		h.actions.logger.Warn("dao validation failed", zap.String("dao", n.DAOAddress), zap.Error(err))
		if code := chain.Classify(err); code == chain.CodeNetwork {
			return "", h.failCall(err, nil)
		}
		return "", h.fail(chain.CodeNotFound, InvalidDAOMessage, err)
	}

	info := map[string]interface{}{
		"name":        n.Name,
		"description": n.Description,
		"hidden":      n.Hidden,
	}
	for key, value := range map[string]string{
		"image_url": n.ImageURL,
		"website":   n.Website,
		"twitter":   n.Twitter,
		"discord":   n.Discord,
	} {
		if value != "" {
			info[key] = value
		}
	}

	cfg := h.actions.cfg
	msg := map[string]interface{}{
		"dao_address":          n.DAOAddress,
		"cw20_code_id":         cfg.CW20CodeID,
		"funding_goal":         model.Coin{Denom: cfg.PayToken.Denom, Amount: model.MicroString(n.Goal)},
		"funding_token_name":   n.TokenName,
		"funding_token_symbol": n.TokenSymbol,
		"campaign_info":        info,
	}
	if cfg.FeeManagerAddress != "" {
		msg["fee_manager_addr"] = cfg.FeeManagerAddress
	} else if cfg.FeeReceiver != "" {
		msg["fee_receiver"] = cfg.FeeReceiver
		msg["fee"] = cfg.Fee
	}

	res, err := executor.Instantiate(ctx, cfg.EscrowCodeID, "[DAO Up!] "+n.Name, msg, nil)
	if err != nil {
		return "", h.failCall(err, nil, zap.String("wallet", wallet), zap.String("dao", n.DAOAddress))
	}

	h.actions.fetcher.Cache().Invalidate(RegistryKey)
	h.succeed()
	return res.ContractAddress, true
}

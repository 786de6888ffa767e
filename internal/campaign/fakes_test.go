package campaign

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"daoup/internal/chain"
	"daoup/internal/model"
)

const (
	testCampaign = "juno1campaign"
	testDAO      = "juno1dao"
	testGov      = "juno1gov"
	testFunding  = "juno1funding"
	testCreator  = "juno1creator"
	testWallet   = "juno1wallet"
)

var errNotFound = errors.New("rpc error: contract: not found")

func stateFixture(status string) map[string]interface{} {
	return map[string]interface{}{
		"version":            "0.2.0",
		"status":             json.RawMessage(status),
		"dao_addr":           testDAO,
		"creator":            testCreator,
		"funding_goal":       map[string]string{"denom": "ujuno", "amount": "100000000"},
		"funds_raised":       map[string]string{"denom": "ujuno", "amount": "25000000"},
		"funding_token_info": map[string]interface{}{"name": "Fund", "symbol": "FND", "decimals": 6, "total_supply": "0"},
		"gov_token_info":     map[string]interface{}{"name": "Gov", "symbol": "GOV", "decimals": 6, "total_supply": "1000000000"},
		"campaign_info":      map[string]interface{}{"name": "Test Campaign", "description": "Raising for a garden", "hidden": false},
		"gov_token_addr":     testGov,
		"funding_token_addr": testFunding,
	}
}

func rawState(state map[string]interface{}) json.RawMessage {
	data, err := json.Marshal(state)
	if err != nil {
		panic(err)
	}
	return data
}

// fakeReader answers smart queries from in-memory tables.
type fakeReader struct {
	mu        sync.Mutex
	states    map[string]json.RawMessage
	cw20      map[string]string
	native    map[string]string
	configs   map[string]interface{}
	members   map[string][]string
	contracts map[uint64][]string
	fail      map[string]error
	calls     map[string]int
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		states:    make(map[string]json.RawMessage),
		cw20:      make(map[string]string),
		native:    make(map[string]string),
		configs:   make(map[string]interface{}),
		members:   make(map[string][]string),
		contracts: make(map[uint64][]string),
		fail:      make(map[string]error),
		calls:     make(map[string]int),
	}
}

func (f *fakeReader) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeReader) QuerySmart(ctx context.Context, contract string, query interface{}, out interface{}) error {
	data, err := json.Marshal(query)
	if err != nil {
		return err
	}
	var parsed map[string]json.RawMessage
	if err := json.Unmarshal(data, &parsed); err != nil {
		return err
	}
	var name string
	for key := range parsed {
		name = key
	}

	f.mu.Lock()
	f.calls[name]++
	failErr := f.fail[contract]
	var resp interface{}
	switch name {
	case "dump_state":
		state, ok := f.states[contract]
		if !ok {
			failErr = errNotFound
		}
		resp = state
	case "balance":
		var args struct {
			Address string `json:"address"`
		}
		_ = json.Unmarshal(parsed[name], &args)
		resp = map[string]string{"balance": f.cw20[contract+"/"+args.Address]}
	case "get_config":
		cfg, ok := f.configs[contract]
		if !ok {
			failErr = errNotFound
		}
		resp = cfg
	case "list_members":
		var members []map[string]interface{}
		for _, addr := range f.members[contract] {
			members = append(members, map[string]interface{}{"addr": addr, "priority": 0})
		}
		resp = map[string]interface{}{"members": members}
	default:
		failErr = fmt.Errorf("unexpected query %s", name)
	}
	f.mu.Unlock()

	if failErr != nil {
		return chain.Wrap(failErr)
	}
	encoded, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return json.Unmarshal(encoded, out)
}

func (f *fakeReader) ContractsByCode(ctx context.Context, codeID uint64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["contracts_by_code"]++
	return append([]string(nil), f.contracts[codeID]...), nil
}

func (f *fakeReader) TokenInfo(ctx context.Context, token string) (model.TokenInfo, error) {
	return model.TokenInfo{Name: "Token", Symbol: "TKN", Decimals: 6}, nil
}

func (f *fakeReader) Balance(ctx context.Context, address, denom string) (model.Coin, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["bank_balance"]++
	if err := f.fail[address]; err != nil {
		return model.Coin{}, chain.Wrap(err)
	}
	amount, ok := f.native[address+"/"+denom]
	if !ok {
		amount = "0"
	}
	return model.Coin{Denom: denom, Amount: amount}, nil
}

func testMapper() Mapper {
	return Mapper{
		DAOURLPrefix: "https://daodao.zone/dao/",
		PayToken:     model.PayToken{Denom: "ujuno", Symbol: "JUNO", Decimals: 6},
	}
}

// fixtureReader serves one open campaign priced at 2 with 500 GOV held by the campaign.
func fixtureReader() *fakeReader {
	r := newFakeReader()
	r.states[testCampaign] = rawState(stateFixture(`{"open":{"token_price":"2000000","initial_gov_token_balance":"500000000"}}`))
	r.cw20[testGov+"/"+testCampaign] = "500000000"
	r.cw20[testGov+"/"+testDAO] = "250000000"
	return r
}

// fakeExecutor records submitted transactions.
type fakeExecutor struct {
	mu          sync.Mutex
	address     string
	err         error
	events      []chain.Event
	executes    []chain.ExecuteMsg
	batches     [][]chain.ExecuteMsg
	instantiate []interface{}
	label       string
	codeID      uint64
}

func (f *fakeExecutor) Address() string { return f.address }

func (f *fakeExecutor) Execute(ctx context.Context, contract string, msg interface{}, funds []model.Coin) (chain.TxResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executes = append(f.executes, chain.ExecuteMsg{Contract: contract, Msg: msg, Funds: funds})
	if f.err != nil {
		return chain.TxResult{}, f.err
	}
	return chain.TxResult{Hash: "ABCD", Events: f.events}, nil
}

func (f *fakeExecutor) ExecuteBatch(ctx context.Context, msgs []chain.ExecuteMsg) (chain.TxResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, msgs)
	if f.err != nil {
		return chain.TxResult{}, f.err
	}
	return chain.TxResult{Hash: "ABCD", Events: f.events}, nil
}

func (f *fakeExecutor) Instantiate(ctx context.Context, codeID uint64, label string, msg interface{}, funds []model.Coin) (chain.InstantiateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.instantiate = append(f.instantiate, msg)
	f.label = label
	f.codeID = codeID
	if f.err != nil {
		return chain.InstantiateResult{}, f.err
	}
	return chain.InstantiateResult{ContractAddress: "juno1new"}, nil
}

func (f *fakeExecutor) Balance(ctx context.Context, address, denom string) (model.Coin, error) {
	return model.Coin{Denom: denom, Amount: "0"}, nil
}

func (f *fakeExecutor) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.executes) + len(f.batches) + len(f.instantiate)
}

type fakeSession struct {
	executor chain.Executor
	address  string
}

func (s fakeSession) Executor() (chain.Executor, bool) {
	return s.executor, s.executor != nil
}

func (s fakeSession) Address() (string, bool) {
	return s.address, s.address != ""
}

// marshalMsg renders a contract message for comparisons.
func marshalMsg(msg interface{}) string {
	data, err := json.Marshal(msg)
	if err != nil {
		panic(err)
	}
	return string(data)
}

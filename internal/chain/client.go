package chain

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"daoup/internal/model"
)

// Observer receives the outcome of every RPC call.
type Observer interface {
	ObserveRPC(method string, elapsed time.Duration, err error)
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithObserver registers an RPC observer.
func WithObserver(observer Observer) Option {
	return func(c *Client) {
		c.observer = observer
	}
}

// Client wraps a CometBFT JSON-RPC connection and provides query helpers.
type Client struct {
	rpcClient *rpc.Client
	logger    *zap.Logger
	observer  Observer

	mu        sync.RWMutex
	timeCache map[int64]time.Time

	tokenMu    sync.RWMutex
	tokenCache map[string]model.TokenInfo
}

// NewClient creates a new chain client from the RPC URL.
func NewClient(ctx context.Context, rpcURL string, opts ...Option) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, Wrap(fmt.Errorf("dial rpc: %w", err))
	}

	c := &Client{
		rpcClient:  rpcClient,
		logger:     zap.NewNop(),
		timeCache:  make(map[int64]time.Time),
		tokenCache: make(map[string]model.TokenInfo),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

func (c *Client) call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	start := time.Now()
	err := c.rpcClient.CallContext(ctx, result, method, args...)
	err = normalizeRPCError(err)
	if c.observer != nil {
		c.observer.ObserveRPC(method, time.Since(start), err)
	}
	if err != nil {
		c.logger.Debug("rpc call failed", zap.String("method", method), zap.Error(err))
		return Wrap(fmt.Errorf("%s: %w", method, err))
	}
	return nil
}

func normalizeRPCError(err error) error {
	if err == nil {
		return nil
	}
	var rpcErr rpc.Error
	if !errors.As(err, &rpcErr) {
		return err
	}
	out := &RPCError{Code: rpcErr.ErrorCode(), Message: rpcErr.Error()}
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) && dataErr.ErrorData() != nil {
		switch data := dataErr.ErrorData().(type) {
		case string:
			out.Data = data
		default:
			out.Data = fmt.Sprintf("%v", data)
		}
	}
	return out
}

type abciQueryResult struct {
	Response struct {
		Code      uint32 `json:"code"`
		Log       string `json:"log"`
		Codespace string `json:"codespace"`
		Value     []byte `json:"value"`
		Height    string `json:"height"`
	} `json:"response"`
}

func (c *Client) abciQuery(ctx context.Context, path string, data []byte) ([]byte, error) {
	var result abciQueryResult
	params := strings.ToUpper(hex.EncodeToString(data))
	if err := c.call(ctx, &result, "abci_query", path, params, "0", false); err != nil {
		return nil, err
	}
	if result.Response.Code != 0 {
		return nil, Wrap(&ABCIError{
			Codespace: result.Response.Codespace,
			Code:      result.Response.Code,
			Log:       result.Response.Log,
		})
	}
	return result.Response.Value, nil
}

// QuerySmart runs a CosmWasm smart query and decodes the JSON response into out.
func (c *Client) QuerySmart(ctx context.Context, contract string, query interface{}, out interface{}) error {
	queryData, err := json.Marshal(query)
	if err != nil {
		return fmt.Errorf("encode query: %w", err)
	}
	req := message(nil).str(1, contract).bytes(2, queryData)

	value, err := c.abciQuery(ctx, pathSmartContractState, req)
	if err != nil {
		return err
	}
	fields, err := decodeFields(value)
	if err != nil {
		return Wrap(fmt.Errorf("decode smart query response: %w", err))
	}
	var data []byte
	for _, f := range fields {
		if f.num == 1 {
			data = f.bytes
		}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return Wrap(fmt.Errorf("decode smart query %s: %w", contract, err))
	}
	return nil
}

// ContractsByCode lists every contract instantiated from codeID, following pagination.
func (c *Client) ContractsByCode(ctx context.Context, codeID uint64) ([]string, error) {
	var (
		contracts []string
		nextKey   []byte
	)
	for {
		page := message(nil).bytes(1, nextKey).uint(3, 100)
		req := message(nil).uint(1, codeID).embed(2, page)

		value, err := c.abciQuery(ctx, pathContractsByCode, req)
		if err != nil {
			return nil, err
		}
		fields, err := decodeFields(value)
		if err != nil {
			return nil, Wrap(fmt.Errorf("decode contracts by code: %w", err))
		}

		nextKey = nil
		for _, f := range fields {
			switch f.num {
			case 1:
				contracts = append(contracts, string(f.bytes))
			case 2:
				pagination, err := decodeFields(f.bytes)
				if err != nil {
					return nil, Wrap(fmt.Errorf("decode pagination: %w", err))
				}
				for _, p := range pagination {
					if p.num == 1 {
						nextKey = p.bytes
					}
				}
			}
		}
		if len(nextKey) == 0 {
			return contracts, nil
		}
	}
}

// Account is the signing state of an on-chain account.
type Account struct {
	Address       string
	AccountNumber uint64
	Sequence      uint64
}

// Account fetches the account number and sequence of address.
func (c *Client) Account(ctx context.Context, address string) (Account, error) {
	value, err := c.abciQuery(ctx, pathAccount, message(nil).str(1, address))
	if err != nil {
		if Classify(err) == CodeNotFound {
			return Account{}, &Error{
				Code: CodeInsufficientFunds,
				Err:  fmt.Errorf("account %s: Account does not exist on chain.", address),
			}
		}
		return Account{}, err
	}

	fields, err := decodeFields(value)
	if err != nil {
		return Account{}, Wrap(fmt.Errorf("decode account response: %w", err))
	}
	var accountAny []byte
	for _, f := range fields {
		if f.num == 1 {
			accountAny = f.bytes
		}
	}
	typeURL, raw, err := decodeAny(accountAny)
	if err != nil {
		return Account{}, Wrap(fmt.Errorf("decode account: %w", err))
	}
	if !strings.HasSuffix(typeURL, ".BaseAccount") {
		return Account{}, fmt.Errorf("unsupported account type %q", typeURL)
	}

	accountFields, err := decodeFields(raw)
	if err != nil {
		return Account{}, Wrap(fmt.Errorf("decode base account: %w", err))
	}
	account := Account{Address: address}
	for _, f := range accountFields {
		switch f.num {
		case 3:
			account.AccountNumber = f.varint
		case 4:
			account.Sequence = f.varint
		}
	}
	return account, nil
}

// Balance returns the native balance of address in denom.
func (c *Client) Balance(ctx context.Context, address, denom string) (model.Coin, error) {
	req := message(nil).str(1, address).str(2, denom)
	value, err := c.abciQuery(ctx, pathBalance, req)
	if err != nil {
		return model.Coin{}, err
	}
	fields, err := decodeFields(value)
	if err != nil {
		return model.Coin{}, Wrap(fmt.Errorf("decode balance response: %w", err))
	}
	coin := model.Coin{Denom: denom, Amount: "0"}
	for _, f := range fields {
		if f.num == 1 {
			coin, err = decodeCoin(f.bytes)
			if err != nil {
				return model.Coin{}, Wrap(fmt.Errorf("decode balance: %w", err))
			}
		}
	}
	if coin.Denom == "" {
		coin.Denom = denom
	}
	return coin, nil
}

type blockResult struct {
	Block struct {
		Header struct {
			Height string    `json:"height"`
			Time   time.Time `json:"time"`
		} `json:"header"`
	} `json:"block"`
}

// BlockTime returns the block time at height, using an in-memory cache.
func (c *Client) BlockTime(ctx context.Context, height int64) (time.Time, error) {
	c.mu.RLock()
	ts, ok := c.timeCache[height]
	c.mu.RUnlock()
	if ok {
		return ts, nil
	}

	var result blockResult
	if err := c.call(ctx, &result, "block", strconv.FormatInt(height, 10)); err != nil {
		return time.Time{}, err
	}

	ts = result.Block.Header.Time
	c.mu.Lock()
	c.timeCache[height] = ts
	c.mu.Unlock()

	return ts, nil
}

// TxResult is a transaction found on chain.
type TxResult struct {
	Hash   string
	Height int64
	Code   uint32
	Log    string
	Events []Event
}

type rawTxResult struct {
	Hash     string `json:"hash"`
	Height   string `json:"height"`
	TxResult struct {
		Code      uint32     `json:"code"`
		Codespace string     `json:"codespace"`
		Log       string     `json:"log"`
		Events    []rawEvent `json:"events"`
	} `json:"tx_result"`
}

func (r rawTxResult) result() (TxResult, error) {
	height, err := strconv.ParseInt(r.Height, 10, 64)
	if err != nil {
		return TxResult{}, fmt.Errorf("parse height %q: %w", r.Height, err)
	}
	events := make([]Event, 0, len(r.TxResult.Events))
	for _, ev := range r.TxResult.Events {
		events = append(events, ev.event())
	}
	return TxResult{
		Hash:   r.Hash,
		Height: height,
		Code:   r.TxResult.Code,
		Log:    r.TxResult.Log,
		Events: events,
	}, nil
}

// Tx fetches a committed transaction by hex hash.
func (c *Client) Tx(ctx context.Context, hash string) (TxResult, error) {
	hashBytes, err := hex.DecodeString(hash)
	if err != nil {
		return TxResult{}, fmt.Errorf("decode tx hash %q: %w", hash, err)
	}
	var raw rawTxResult
	if err := c.call(ctx, &raw, "tx", base64.StdEncoding.EncodeToString(hashBytes), false); err != nil {
		return TxResult{}, err
	}
	return raw.result()
}

// TxSearchPage is one page of tx_search results.
type TxSearchPage struct {
	Txs        []TxResult
	TotalCount int
}

// SearchTxs runs tx_search for query, newest first. Pages start at 1.
func (c *Client) SearchTxs(ctx context.Context, query string, page, perPage int) (TxSearchPage, error) {
	var raw struct {
		Txs        []rawTxResult `json:"txs"`
		TotalCount string        `json:"total_count"`
	}
	err := c.call(ctx, &raw, "tx_search", query, false, strconv.Itoa(page), strconv.Itoa(perPage), "desc")
	if err != nil {
		return TxSearchPage{}, err
	}

	total, err := strconv.Atoi(raw.TotalCount)
	if err != nil {
		return TxSearchPage{}, fmt.Errorf("parse total_count %q: %w", raw.TotalCount, err)
	}
	out := TxSearchPage{TotalCount: total, Txs: make([]TxResult, 0, len(raw.Txs))}
	for _, tx := range raw.Txs {
		result, err := tx.result()
		if err != nil {
			return TxSearchPage{}, err
		}
		out.Txs = append(out.Txs, result)
	}
	return out, nil
}

type broadcastResult struct {
	Code      uint32 `json:"code"`
	Codespace string `json:"codespace"`
	Log       string `json:"log"`
	Hash      string `json:"hash"`
}

// BroadcastSync submits a signed transaction and returns its hash after CheckTx.
func (c *Client) BroadcastSync(ctx context.Context, txBytes []byte) (string, error) {
	var result broadcastResult
	if err := c.call(ctx, &result, "broadcast_tx_sync", base64.StdEncoding.EncodeToString(txBytes)); err != nil {
		return "", err
	}
	if result.Code != 0 {
		return result.Hash, &Error{
			Code:   Classify(&ABCIError{Codespace: result.Codespace, Code: result.Code, Log: result.Log}),
			TxHash: result.Hash,
			Err:    &ABCIError{Codespace: result.Codespace, Code: result.Code, Log: result.Log},
		}
	}
	return result.Hash, nil
}

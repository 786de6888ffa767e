package chain

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type rpcErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

type rpcHandler func(t *testing.T, method string, params []json.RawMessage) (interface{}, *rpcErrorBody)

func newTestClient(t *testing.T, handler rpcHandler) *Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		result, rpcErr := handler(t, req.Method, req.Params)
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func stringParam(t *testing.T, raw json.RawMessage) string {
	t.Helper()
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		t.Fatalf("decode string param %s: %v", raw, err)
	}
	return s
}

// abciRequest decodes the path and protobuf payload of an abci_query call.
func abciRequest(t *testing.T, params []json.RawMessage) (string, []field) {
	t.Helper()
	if len(params) != 4 {
		t.Fatalf("abci_query params = %d, want 4", len(params))
	}
	data, err := hex.DecodeString(stringParam(t, params[1]))
	if err != nil {
		t.Fatalf("decode abci data: %v", err)
	}
	fields, err := decodeFields(data)
	if err != nil {
		t.Fatalf("decode abci request: %v", err)
	}
	return stringParam(t, params[0]), fields
}

func abciValue(value []byte) interface{} {
	return map[string]interface{}{
		"response": map[string]interface{}{
			"code":   0,
			"log":    "",
			"value":  base64.StdEncoding.EncodeToString(value),
			"height": "42",
		},
	}
}

func abciFailure(code uint32, log string) interface{} {
	return map[string]interface{}{
		"response": map[string]interface{}{
			"code":      code,
			"codespace": "wasm",
			"log":       log,
			"value":     nil,
		},
	}
}

func smartResponse(t *testing.T, v interface{}) interface{} {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal smart response: %v", err)
	}
	return abciValue(message(nil).bytes(1, data))
}

func TestQuerySmart(t *testing.T) {
	client := newTestClient(t, func(t *testing.T, method string, params []json.RawMessage) (interface{}, *rpcErrorBody) {
		if method != "abci_query" {
			t.Errorf("method = %s", method)
		}
		path, fields := abciRequest(t, params)
		if path != pathSmartContractState {
			t.Errorf("path = %s", path)
		}
		if string(fields[0].bytes) != "juno1campaign" {
			t.Errorf("contract = %s", fields[0].bytes)
		}
		if string(fields[1].bytes) != `{"dump_state":{}}` {
			t.Errorf("query = %s", fields[1].bytes)
		}
		return smartResponse(t, map[string]string{"dao_addr": "juno1dao"}), nil
	})

	var out struct {
		DAOAddr string `json:"dao_addr"`
	}
	err := client.QuerySmart(context.Background(), "juno1campaign", map[string]struct{}{"dump_state": {}}, &out)
	if err != nil {
		t.Fatalf("QuerySmart: %v", err)
	}
	if out.DAOAddr != "juno1dao" {
		t.Fatalf("dao_addr = %q", out.DAOAddr)
	}
}

func TestQuerySmartABCIErrorIsClassified(t *testing.T) {
	client := newTestClient(t, func(t *testing.T, method string, params []json.RawMessage) (interface{}, *rpcErrorBody) {
		return abciFailure(9, "query wasm contract failed: Error parsing into type cw20_base::msg::QueryMsg: unknown variant `dump_state`"), nil
	})

	err := client.QuerySmart(context.Background(), "juno1token", map[string]struct{}{"dump_state": {}}, &struct{}{})
	if err == nil {
		t.Fatal("expected error")
	}
	if code := CodeOf(err); code != CodeInvalidAddress {
		t.Fatalf("code = %s, want invalid_address", code)
	}
	if msg := Message(err, nil); msg != "Invalid address." {
		t.Fatalf("message = %q", msg)
	}
}

func TestContractsByCodeFollowsNextKey(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(t *testing.T, method string, params []json.RawMessage) (interface{}, *rpcErrorBody) {
		path, fields := abciRequest(t, params)
		if path != pathContractsByCode {
			t.Errorf("path = %s", path)
		}
		if fields[0].num != 1 || fields[0].varint != 12 {
			t.Errorf("code id field = %+v", fields[0])
		}
		page, err := decodeFields(fields[1].bytes)
		if err != nil {
			t.Fatalf("decode page request: %v", err)
		}

		var key []byte
		for _, f := range page {
			if f.num == 1 {
				key = f.bytes
			}
		}

		atomic.AddInt32(&calls, 1)
		resp := message(nil).str(1, "juno1a").str(1, "juno1b")
		if len(key) == 0 {
			resp = resp.embed(2, message(nil).bytes(1, []byte("next")))
			return abciValue(resp), nil
		}
		if string(key) != "next" {
			t.Errorf("key = %q", key)
		}
		return abciValue(message(nil).str(1, "juno1c").embed(2, nil)), nil
	})

	contracts, err := client.ContractsByCode(context.Background(), 12)
	if err != nil {
		t.Fatalf("ContractsByCode: %v", err)
	}
	want := []string{"juno1a", "juno1b", "juno1c"}
	if len(contracts) != len(want) {
		t.Fatalf("contracts = %v", contracts)
	}
	for i := range want {
		if contracts[i] != want[i] {
			t.Fatalf("contracts = %v", contracts)
		}
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestBalanceAndAccount(t *testing.T) {
	client := newTestClient(t, func(t *testing.T, method string, params []json.RawMessage) (interface{}, *rpcErrorBody) {
		path, fields := abciRequest(t, params)
		switch path {
		case pathBalance:
			if string(fields[1].bytes) != "ujuno" {
				t.Errorf("denom = %s", fields[1].bytes)
			}
			coin := encodeCoin(modelCoin("ujuno", "5000000"))
			return abciValue(message(nil).embed(1, coin)), nil
		case pathAccount:
			base := message(nil).str(1, string(fields[0].bytes)).uint(3, 7).uint(4, 3)
			accountAny := encodeAny("/cosmos.auth.v1beta1.BaseAccount", base)
			return abciValue(message(nil).embed(1, accountAny)), nil
		}
		t.Errorf("unexpected path %s", path)
		return nil, nil
	})

	coin, err := client.Balance(context.Background(), "juno1wallet", "ujuno")
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if coin.Amount != "5000000" || coin.Denom != "ujuno" {
		t.Fatalf("coin = %+v", coin)
	}

	account, err := client.Account(context.Background(), "juno1wallet")
	if err != nil {
		t.Fatalf("Account: %v", err)
	}
	if account.AccountNumber != 7 || account.Sequence != 3 {
		t.Fatalf("account = %+v", account)
	}
}

func TestAccountMissingIsInsufficientFunds(t *testing.T) {
	client := newTestClient(t, func(t *testing.T, method string, params []json.RawMessage) (interface{}, *rpcErrorBody) {
		return abciFailure(22, "rpc error: code = NotFound desc = account juno1new not found: key not found"), nil
	})

	_, err := client.Account(context.Background(), "juno1new")
	if code := CodeOf(err); code != CodeInsufficientFunds {
		t.Fatalf("code = %s, want insufficient_funds", code)
	}
}

func TestBlockTimeIsCached(t *testing.T) {
	var calls int32
	blockTime := time.Date(2022, 3, 1, 12, 0, 0, 0, time.UTC)
	client := newTestClient(t, func(t *testing.T, method string, params []json.RawMessage) (interface{}, *rpcErrorBody) {
		atomic.AddInt32(&calls, 1)
		if method != "block" || stringParam(t, params[0]) != "100" {
			t.Errorf("unexpected call %s %s", method, params)
		}
		return map[string]interface{}{
			"block": map[string]interface{}{
				"header": map[string]interface{}{"height": "100", "time": blockTime.Format(time.RFC3339Nano)},
			},
		}, nil
	})

	for i := 0; i < 3; i++ {
		ts, err := client.BlockTime(context.Background(), 100)
		if err != nil {
			t.Fatalf("BlockTime: %v", err)
		}
		if !ts.Equal(blockTime) {
			t.Fatalf("time = %v", ts)
		}
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestSearchTxsDecodesAttributes(t *testing.T) {
	b64 := func(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }
	client := newTestClient(t, func(t *testing.T, method string, params []json.RawMessage) (interface{}, *rpcErrorBody) {
		if method != "tx_search" {
			t.Errorf("method = %s", method)
		}
		if got := stringParam(t, params[4]); got != "desc" {
			t.Errorf("order_by = %s", got)
		}
		return map[string]interface{}{
			"total_count": "2",
			"txs": []interface{}{
				map[string]interface{}{
					"hash":   "AA",
					"height": "11",
					"tx_result": map[string]interface{}{
						"code": 0,
						"events": []interface{}{
							map[string]interface{}{"type": "wasm", "attributes": []interface{}{
								map[string]string{"key": b64("_contract_address"), "value": b64("juno1c")},
								map[string]string{"key": b64("action"), "value": b64("fund")},
							}},
						},
					},
				},
				map[string]interface{}{
					"hash":   "BB",
					"height": "10",
					"tx_result": map[string]interface{}{
						"code": 0,
						"events": []interface{}{
							map[string]interface{}{"type": "wasm", "attributes": []interface{}{
								map[string]string{"key": "_contract_address", "value": "juno1c"},
								map[string]string{"key": "action", "value": "refund"},
							}},
						},
					},
				},
			},
		}, nil
	})

	page, err := client.SearchTxs(context.Background(), "wasm._contract_address='juno1c'", 1, 30)
	if err != nil {
		t.Fatalf("SearchTxs: %v", err)
	}
	if page.TotalCount != 2 || len(page.Txs) != 2 {
		t.Fatalf("page = %+v", page)
	}
	if action, _ := FindAttribute(page.Txs[0].Events, "wasm", "action"); action != "fund" {
		t.Fatalf("first action = %q", action)
	}
	if action, _ := FindAttribute(page.Txs[1].Events, "wasm", "action"); action != "refund" {
		t.Fatalf("second action = %q", action)
	}
	if page.Txs[0].Height != 11 {
		t.Fatalf("height = %d", page.Txs[0].Height)
	}
}

func TestRPCErrorsAreClassified(t *testing.T) {
	client := newTestClient(t, func(t *testing.T, method string, params []json.RawMessage) (interface{}, *rpcErrorBody) {
		return nil, &rpcErrorBody{
			Code:    -32603,
			Message: "Internal error",
			Data:    "height 5 is not available, lowest height is 100",
		}
	})

	_, err := client.BlockTime(context.Background(), 5)
	if code := CodeOf(err); code != CodeBlockHeightTooLow {
		t.Fatalf("code = %s, want block_height_too_low (err %v)", code, err)
	}
}

func TestHTTPStatusIsClassified(t *testing.T) {
	for status, want := range map[int]Code{
		http.StatusForbidden:          CodeGetClientFailed,
		http.StatusServiceUnavailable: CodeNetwork,
	} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", status)
		}))
		client, err := NewClient(context.Background(), server.URL)
		if err != nil {
			t.Fatalf("NewClient: %v", err)
		}
		_, err = client.BlockTime(context.Background(), 1)
		if code := CodeOf(err); code != want {
			t.Fatalf("status %d: code = %s, want %s", status, code, want)
		}
		client.Close()
		server.Close()
	}
}
